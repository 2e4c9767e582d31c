/*
Package execx wraps subprocess execution behind a small typed interface.

Everything that shells out (docker compose, docker inspect, ffprobe,
ffmpeg) goes through a Runner so tests can substitute canned results. A
nonzero exit code is returned as part of the Result rather than as an
error; only failures to start or a blown deadline surface as errors.
*/
package execx
