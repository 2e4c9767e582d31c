// Package scheduler sequences service configuration along the stack's
// dependency graph.
//
// The graph is fixed:
//
//	qbittorrent → radarr, sonarr
//	radarr, sonarr → prowlarr
//	jellyfin, radarr, sonarr → jellyseerr
//	jellyfin, pipeline: no prerequisites
//
// Ensure walks the topological order and fails fast per branch: a
// failed service marks its whole downstream as failed with a detail
// naming the blocker, while unrelated branches keep converging. Verify
// walks the same order but checks everything regardless of upstream
// failures, since a health report with holes in it is not a health
// report.
//
// Client panics are recovered into failed outcomes; the run continues
// and the panic message becomes the stage detail.
package scheduler
