/*
Package log provides structured logging for eznas using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper functions
for common logging patterns. All logs include timestamps and support filtering
by severity level.

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all eznas packages
  - Thread-safe concurrent writes

Log Levels:
  - Debug: Detailed debugging information
  - Info: General informational messages
  - Warn: Warning messages (potential issues)
  - Error: Error messages (operation failed)
  - Fatal: Critical errors (process exits)

Configuration:
  - Level: Filter messages below threshold
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer for log destination (stdout, file)

Context Loggers:
  - WithComponent: Add component name to all logs
  - WithService: Add service name context
  - WithRunID: Add apply run ID context

# Usage

Initializing the Logger:

	import "github.com/ereinha3/eznas/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
		Output:     os.Stdout,
	})

Simple Logging:

	log.Info("Stack converged successfully")
	log.Debug("Checking service readiness")
	log.Warn("Conflicting dev container detected")
	log.Error("Failed to reach qBittorrent API")

Structured Logging:

	log.Logger.Info().
		Str("service", "radarr").
		Int("port", 7878).
		Msg("Service configured")

	log.Logger.Error().
		Err(err).
		Str("run_id", runID).
		Msg("Apply run failed")

Component Loggers:

	pipelineLog := log.WithComponent("pipeline")
	pipelineLog.Info().Str("hash", torrent.Hash).Msg("Remuxing completed download")

	runLog := log.WithRunID(runID)
	runLog.Info().Str("stage", "deploy.compose").Msg("Stage started")

# Log Output Examples

JSON Format (Production):

	{"level":"info","component":"apply","run_id":"a1b2","time":"2026-08-26T10:30:00Z","message":"Compose bundle rendered"}
	{"level":"error","component":"pipeline","error":"ffprobe exited 1","time":"2026-08-26T10:30:02Z","message":"Stream probe failed"}

Console Format (Development):

	2026-08-26T10:30:00Z INF Compose bundle rendered component=apply run_id=a1b2
	2026-08-26T10:30:02Z ERR Stream probe failed component=pipeline error="ffprobe exited 1"

# Best Practices

Do:
  - Use Info level for production
  - Use structured fields for queryable data
  - Create component-specific loggers
  - Log errors with .Err()
  - Include context (service name, run ID)

Don't:
  - Log secrets or API keys
  - Use Debug level in production
  - Log in tight loops
  - Concatenate strings into messages (use .Str, .Int)

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
  - 12-Factor App Logs: https://12factor.net/logs
*/
package log
