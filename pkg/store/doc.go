/*
Package store is the file-backed persistence layer for the stack document
and orchestrator state.

State is split into separate section files for isolation:

	auth.json      accounts and auth settings
	secrets.json   per-service credentials and API keys
	services.json  per-service runtime markers
	runs.json      converge run history (bounded at 20 records)
	pipeline.json  media processing ledger

Writing one section never risks corrupting another, and every write is
atomic and durable (temp file in the target directory, fsync, rename via
renameio). Reads of a corrupted section attempt brace-balance recovery:
the first balanced JSON object is salvaged, the damaged file is moved
aside with a .corrupted suffix, and the salvage is rewritten in place.

A legacy monolithic state.json is split into section files on first
access and renamed to state.json.migrated so migration runs once.

The store also owns directory preparation (EnsureDirectories): the pool,
scratch, and appdata trees the containers mount, created with 0775 and
the configured uid/gid, with failures reported as *PermissionError
carrying the exact chown/chmod commands that fix them.
*/
package store
