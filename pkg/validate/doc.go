// Package validate runs the pre-flight checks gating an apply.
//
// Run produces a ValidationResult keyed by config path:
//
//	paths.pool          ok | missing (run: …) | not_directory | not_writable (run: …)
//	services.radarr.port ok | skipped | in_use | in_use_by_stack
//	docker.cli          present | socket_only | missing
//
// Failure values embed the exact shell remediation where one exists, so
// the apply runner can surface "run: sudo chown -R 1000:1000 /srv/pool"
// instead of a bare permission error.
//
// Port checks distinguish three cases: free, held by the expected stack
// container (in_use_by_stack, not a failure since compose recreates the
// container), and held by something else (a real conflict). Container
// ownership is resolved through docker inspect. The docker check itself
// never fails validation; it is informational.
package validate
