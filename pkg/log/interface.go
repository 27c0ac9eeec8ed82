// Package log provides the structured logging interface used across xclf.
//
// Loggers are obtained from a process-wide LoggerProvider. The default
// provider writes zerolog JSON to stderr at info level; the CLI swaps it for a
// console or Cloud Logging flavoured provider at startup.
//
//	logger := log.GetLoggerWithName("tree").With(log.TreeTypeKey, "kmeans")
//	logger.Info("Tree built",
//	    log.TreeNodesKey, 19,
//	    log.TreeLabelsKey, 10,
//	)
package log

import (
	"context"
)

// Logger is a slog-like structured logger. Fields are alternating key/value
// pairs. Error accepts an error as its first field and records it under
// ErrAttrKey together with its stack trace.
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)

	// With returns a Logger that adds fields to every record.
	With(fields ...any) Logger

	// Enabled reports whether a record at level would be emitted.
	Enabled(ctx context.Context, level Level) bool
}

// Level represents a logging level, compatible with slog.Level.
type Level int

// Standard logging levels, values are compatible with slog.Level.
const (
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// LoggerProvider creates loggers that share one sink and level.
type LoggerProvider interface {
	// GetLogger returns the default logger instance.
	GetLogger() Logger

	// GetLoggerWithName returns a logger tagged with a component name.
	GetLoggerWithName(name string) Logger

	// SetLevel sets the minimum log level for all loggers created by this provider.
	SetLevel(level Level)
}
