// Package logging provides a tiny abstraction over slog so the pipeline can
// depend on a minimal interface (Logger) while allowing users to plug any
// structured logger. It also offers a richer ActionLogger with contextual
// helpers (component, custom attributes), a runtime adjustable level and a
// dispatch summary helper.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

// LogLevel is a thin enum for user friendly level configuration decoupled from slog.
type LogLevel int

const (
	// LogLevelTrace is the most verbose level, used for handler skips.
	LogLevelTrace LogLevel = iota
	// LogLevelDebug is the debug logging level.
	LogLevelDebug
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
	// LogLevelNone disables all output.
	LogLevelNone
)

// slogLevelTrace sits below slog.LevelDebug the same distance Debug sits below Info.
const slogLevelTrace = slog.Level(-8)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelTrace:
		return "TRACE"
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	case LogLevelNone:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a case-insensitive level name into a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LogLevelTrace, nil
	case "debug":
		return LogLevelDebug, nil
	case "info", "":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "error":
		return LogLevelError, nil
	case "none", "off", "silent":
		return LogLevelNone, nil
	default:
		return LogLevelInfo, fmt.Errorf("logging: unknown level %q", s)
	}
}

// Logger defines the minimal logging interface used across the pipeline.
// Args are slog style key/value pairs.
type Logger interface {
	Trace(msg string, args ...any)
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// LevelLogger is a Logger whose threshold can be changed at runtime.
type LevelLogger interface {
	Logger
	SetLevel(level LogLevel)
	GetLevel() LogLevel
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Trace logs a trace message.
func (s *SlogAdapter) Trace(msg string, args ...any) {
	s.Logger.Log(context.Background(), slogLevelTrace, msg, args...)
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// ActionLogger wraps slog.Logger adding contextual cloning helpers and a
// level that can be adjusted while the logger is in use. Clones made via
// With* share the level with their parent.
type ActionLogger struct {
	logger    *slog.Logger
	level     *slog.LevelVar
	threshold *atomic.Int64
	context   map[string]any
	component string
}

// LoggerConfig configures construction of an ActionLogger.
type LoggerConfig struct {
	Level       LogLevel
	Format      string // json or text
	Output      io.Writer
	AddSource   bool
	Component   string
	CustomAttrs map[string]any
}

// DefaultLoggerConfig returns a baseline JSON info level configuration.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stdout, CustomAttrs: map[string]any{}}
}

// NewLogger builds an ActionLogger from a config (or defaults if nil).
func NewLogger(cfg *LoggerConfig) *ActionLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}

	lv := new(slog.LevelVar)
	lv.Set(slogLevel(cfg.Level))

	opts := &slog.HandlerOptions{Level: lv, AddSource: cfg.AddSource, ReplaceAttr: replaceLevelName}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(cfg.Output, opts)
	} else {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	}

	threshold := new(atomic.Int64)
	threshold.Store(int64(cfg.Level))
	ctx := make(map[string]any, len(cfg.CustomAttrs))
	for k, v := range cfg.CustomAttrs {
		ctx[k] = v
	}

	return &ActionLogger{logger: slog.New(handler), level: lv, threshold: threshold, context: ctx, component: cfg.Component}
}

// NewSlogLogger creates a new ActionLogger with the specified level and format.
func NewSlogLogger(level LogLevel, format string, addSource bool) *ActionLogger {
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	if format != "" {
		cfg.Format = format
	}
	cfg.AddSource = addSource
	return NewLogger(cfg)
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelTrace:
		return slogLevelTrace
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	case LogLevelNone:
		return slog.Level(1 << 10)
	default:
		return slog.LevelInfo
	}
}

// replaceLevelName renders the custom trace level as "TRACE" instead of "DEBUG-4".
func replaceLevelName(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == slogLevelTrace {
			a.Value = slog.StringValue("TRACE")
		}
	}
	return a
}

// SetLevel changes the threshold for this logger and every clone sharing it.
func (l *ActionLogger) SetLevel(level LogLevel) {
	l.threshold.Store(int64(level))
	l.level.Set(slogLevel(level))
}

// GetLevel returns the current threshold.
func (l *ActionLogger) GetLevel() LogLevel {
	return LogLevel(l.threshold.Load())
}

func (l *ActionLogger) clone() *ActionLogger {
	nl := *l
	nl.context = make(map[string]any, len(l.context))
	for k, v := range l.context {
		nl.context[k] = v
	}
	return &nl
}

// WithContext adds a key/value attribute that will be attached to every log entry.
func (l *ActionLogger) WithContext(key string, value any) *ActionLogger {
	nl := l.clone()
	nl.context[key] = value
	return nl
}

// WithComponent sets the logical component (registry, pipeline, guard, etc.).
func (l *ActionLogger) WithComponent(c string) *ActionLogger {
	nl := l.clone()
	nl.component = c
	return nl
}

func (l *ActionLogger) buildArgs(args []any) []any {
	out := make([]any, 0, len(l.context)*2+2+len(args))
	if l.component != "" {
		out = append(out, slog.String("component", l.component))
	}
	for k, v := range l.context {
		out = append(out, slog.Any(k, v))
	}
	return append(out, args...)
}

func (l *ActionLogger) log(level slog.Level, msg string, args ...any) {
	ctx := context.Background()
	if !l.logger.Enabled(ctx, level) {
		return
	}
	l.logger.Log(ctx, level, msg, l.buildArgs(args)...)
}

// Trace logs at trace level.
func (l *ActionLogger) Trace(msg string, args ...any) { l.log(slogLevelTrace, msg, args...) }

// Debug logs at debug level.
func (l *ActionLogger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args...) }

// Info logs at info level.
func (l *ActionLogger) Info(msg string, args ...any) { l.log(slog.LevelInfo, msg, args...) }

// Warn logs at warn level.
func (l *ActionLogger) Warn(msg string, args ...any) { l.log(slog.LevelWarn, msg, args...) }

// Error logs at error level.
func (l *ActionLogger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args...) }

// LogDispatch records the aggregate outcome of one dispatch.
func (l *ActionLogger) LogDispatch(action, mode string, handlers int, dur time.Duration, outcome string, err error) {
	args := []any{
		slog.String("action", action),
		slog.String("mode", mode),
		slog.Int("handler_count", handlers),
		slog.Duration("duration", dur),
		slog.String("outcome", outcome),
	}
	level := slog.LevelDebug
	msg := "Dispatch completed"
	if err != nil {
		args = append(args, slog.String("error", err.Error()))
		level = slog.LevelError
		msg = "Dispatch failed"
	}
	l.log(level, msg, args...)
}

// NoOpLogger discards all log messages. It is the default when no logger is configured.
type NoOpLogger struct{}

// Trace discards a trace message.
func (NoOpLogger) Trace(string, ...any) {}

// Debug discards a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info discards an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn discards a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error discards an error message.
func (NoOpLogger) Error(string, ...any) {}

// SetLevel is a no-op.
func (NoOpLogger) SetLevel(LogLevel) {}

// GetLevel always reports LogLevelNone.
func (NoOpLogger) GetLevel() LogLevel { return LogLevelNone }

// OrNoOp returns l, or a NoOpLogger when l is nil.
func OrNoOp(l Logger) Logger {
	if l == nil {
		return NoOpLogger{}
	}
	return l
}
