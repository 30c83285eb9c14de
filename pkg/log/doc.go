/*
Package log provides structured logging for feedwatch using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper functions
for common logging patterns. All logs include timestamps and support filtering
by severity level.

# Usage

Initializing the logger:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Component loggers:

	busLog := log.WithComponent("bus")
	busLog.Debug().Str("topic", topic).Msg("subscription added")

Actor and entity loggers carry the addressing context through the whole
processing path:

	entLog := log.WithEntity("rss", "news")
	entLog.Warn().Err(err).Msg("fetch failed")

# Integration Points

  - pkg/bus: subscription and publish tracing at debug level
  - pkg/actor: dispatch boundary errors with record identity
  - pkg/monitor: fetch results, interval changes, backoff decisions
  - pkg/engine: actor lifecycle and shutdown
*/
package log
