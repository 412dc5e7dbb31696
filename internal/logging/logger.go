package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

var level = new(slog.LevelVar)

// SetLevel sets the process-wide log level from a name (debug, info, warn, error)
func SetLevel(name string) error {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		level.Set(slog.LevelDebug)
	case "", "info":
		level.Set(slog.LevelInfo)
	case "warn", "warning":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level %q", name)
	}
	return nil
}

// Logger provides structured logging for the worker
type Logger struct {
	prefix string
	logger *slog.Logger
}

// NewLogger creates a new logger with a prefix
func NewLogger(prefix string) *Logger {
	return NewLoggerTo(os.Stdout, prefix)
}

// NewLoggerTo creates a prefixed logger writing to w
func NewLoggerTo(w io.Writer, prefix string) *Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return &Logger{
		prefix: prefix,
		logger: slog.New(handler).With("component", prefix),
	}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return NewLoggerTo(io.Discard, "nop")
}

// With returns a logger that attaches keysAndValues to every record
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{
		prefix: l.prefix,
		logger: l.logger.With(pairs(keysAndValues)...),
	}
}

// Info logs an informational message with key-value pairs
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg, pairs(keysAndValues)...)
}

// Warn logs a warning message with key-value pairs
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn(msg, pairs(keysAndValues)...)
}

// Error logs an error message with key-value pairs
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, pairs(keysAndValues)...)
}

// Debug logs a debug message with key-value pairs
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, pairs(keysAndValues)...)
}

// Slog exposes the underlying slog logger
func (l *Logger) Slog() *slog.Logger {
	return l.logger
}

// pairs drops a dangling key so odd-length input never produces !BADKEY records
func pairs(keysAndValues []interface{}) []any {
	n := len(keysAndValues) - len(keysAndValues)%2
	out := make([]any, 0, n)
	for i := 0; i < n; i += 2 {
		out = append(out, fmt.Sprint(keysAndValues[i]), keysAndValues[i+1])
	}
	return out
}
