// Package logging provides the leveled logging interface consumed by the
// registry, executor, guard station and event bus.
//
// The Logger interface defines Trace, Debug, Info, Warn and Error. This
// package includes:
//
//   - Logger and LevelLogger interfaces for dependency injection
//   - SlogAdapter wrapping any *slog.Logger
//   - ActionLogger, a slog backed logger with a runtime adjustable level
//   - NoOpLogger for silent operation (the default)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	reg := actionregister.New(func(o *actionregister.Options) { o.Logger = logger })
//
// Logging is a pure side channel: nothing logged here ever feeds control
// flow back into a dispatch.
package logging
