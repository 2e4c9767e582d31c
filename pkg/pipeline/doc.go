// Package pipeline is the media post-processing worker.
//
// The worker polls qBittorrent on an interval for completed torrents in
// the movie and TV download categories. For each new torrent it picks
// the largest video file, probes its streams with ffprobe, remuxes the
// kept tracks into an mkv with ffmpeg (codec copy, no transcode), names
// the result from the torrent title and moves it into the media library
// under the pool root. The torrent is then deleted from qBittorrent with
// its payload files removed from scratch.
//
// Every handled torrent gets an entry in the persisted pipeline ledger
// (statuses ok, ffmpeg_failed, skipped_no_files), so a torrent is
// processed at most once even across restarts. Transient failures, such
// as an unreachable API, leave no ledger entry and are retried on the
// next pass.
//
// Paths reported by the qBittorrent API are container paths under
// /downloads; the worker rebases them onto the scratch root and then
// through the path translator, so the same code runs on the host and
// inside the orchestrator container.
package pipeline
