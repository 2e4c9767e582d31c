// Package apply drives one converge run from proposed config to
// verified stack.
//
// A run is a fixed stage sequence: advisory diff, preflight validation,
// directory and proxy preparation, secrets harmonization, compose bundle
// render, config persist, dev-container conflict stop, compose up,
// per-service readiness waits, the scheduler's ensure and verify passes,
// and a terminal finalize. Each stage emits a started event followed by
// ok, warning or failed; events land in the persisted run record and on
// the live broker as they happen, so callers can follow a run in
// flight.
//
// Fatal stages (validate, prepare.paths, prepare.proxy, deploy.compose,
// the readiness waits) end the run immediately. The diff stage and
// prepare.conflicts never fail a run. A verify failure marks the run
// failed but only after every service was checked, so the record shows
// the full picture.
package apply
