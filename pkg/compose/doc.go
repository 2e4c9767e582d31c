// Package compose drives the docker compose CLI against the generated
// bundle.
//
// The Driver covers the stack lifecycle: Up (detached, orphans removed)
// and Down. Both return (ok, detail) where detail is trimmed stdout on
// success and trimmed stderr on failure, suitable for stage event
// streams. Commands run in the compose file's directory so compose finds
// the adjacent .env, and COMPOSE_PROJECT_NAME pins the project so
// repeated applies manage the same container set.
//
// StopConflictingDevServices handles the shared-workstation case: a
// development copy of the stack running under fixed <service>-dev
// container names holds the same host ports the real stack needs. It
// stops (then kills, for hung containers) each conflicting dev container
// and re-checks after a grace period.
//
// All subprocess work goes through execx.Runner, so tests inject fakes
// instead of a docker binary.
package compose
