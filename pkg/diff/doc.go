// Package diff compares two stack configurations and maps every change
// to the services it affects.
//
// Compute flattens both configs into dot-path leaves (lists stay
// atomic), collects the changed leaves in path order, and resolves each
// against a longest-prefix impact table. The table distinguishes two
// blast radii:
//
//   - restart: the container definition changed (mounts, ports,
//     runtime env) and compose must recreate it
//   - reconfigure: only API-visible settings changed and a re-ensure
//     pass is enough
//
// A service slated for restart drops out of the reconfigure set, since
// the post-deploy ensure pass covers it anyway.
//
// The diff is advisory: the apply runner logs it as the first stage of
// a run so operators see exactly what an edit touches before anything
// moves.
package diff
