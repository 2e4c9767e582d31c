// Package clients reconciles the managed services over their HTTP APIs.
//
// Each service has a Client implementing Ensure and Verify. Ensure is
// idempotent: it reads the live state, applies only the deltas the
// stack config demands, and reports (detail, changed). Verify is
// read-only and asserts the same state without mutating it. Both return
// Outcome values rather than errors so the dependency scheduler can
// distinguish a failed service from a crashed orchestrator and skip the
// failed service's dependents.
//
// The clients share a small toolkit:
//
//   - doWithRetry: transient-failure retry with exponential backoff.
//     Connection errors and 5xx class statuses retry up to three times;
//     4xx never retries.
//   - arrAPI: JSON client for the key-in-header APIs (the *arr family
//     and the request broker).
//   - bootstrapArrAPIKey: stored secret first, else poll the service's
//     config.xml until the key appears, then persist it.
//   - ensureFormsAuth: forces forms authentication with the stack
//     owner's credentials, checking the stored password through the
//     service's SQLite user table since the API never echoes it.
//
// The download client stands apart: qBittorrent speaks cookie-session
// WebUI forms, not key-in-header JSON, and its credential repair path
// edits qBittorrent.conf directly and restarts the container when the
// WebUI locks the orchestrator out.
//
// All base URLs use the compose network names and container-internal
// ports (http://radarr:7878), so the orchestrator must run on the same
// docker network as the stack.
package clients
