package core

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// LogLevel represents the severity level of a log message
type LogLevel int

const (
	// LevelDebug is for detailed debugging information
	LevelDebug LogLevel = iota
	// LevelInfo is for general informational messages
	LevelInfo
	// LevelWarn is for warning messages
	LevelWarn
	// LevelError is for error messages
	LevelError
)

func (l LogLevel) charm() log.Level {
	switch l {
	case LevelDebug:
		return log.DebugLevel
	case LevelWarn:
		return log.WarnLevel
	case LevelError:
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// Logger is the interface for logging operations
type Logger interface {
	// Debug logs a debug message
	Debug(msg string, keyvals ...any)
	// Info logs an informational message
	Info(msg string, keyvals ...any)
	// Warn logs a warning message
	Warn(msg string, keyvals ...any)
	// Error logs an error message
	Error(msg string, keyvals ...any)
	// With returns a new logger with additional key-value pairs
	With(keyvals ...any) Logger
}

// charmLogger writes leveled, timestamped console output through charmbracelet/log
type charmLogger struct {
	logger *log.Logger
}

// NewCharmLogger creates a console logger that writes to the given writer
func NewCharmLogger(writer io.Writer, minLevel LogLevel) Logger {
	return &charmLogger{
		logger: log.NewWithOptions(writer, log.Options{
			ReportTimestamp: true,
			Level:           minLevel.charm(),
		}),
	}
}

// NewStdLogger creates a console logger that writes to stderr
func NewStdLogger(minLevel LogLevel) Logger {
	return NewCharmLogger(os.Stderr, minLevel)
}

func (l *charmLogger) Debug(msg string, keyvals ...any) { l.logger.Debug(msg, keyvals...) }
func (l *charmLogger) Info(msg string, keyvals ...any)  { l.logger.Info(msg, keyvals...) }
func (l *charmLogger) Warn(msg string, keyvals ...any)  { l.logger.Warn(msg, keyvals...) }
func (l *charmLogger) Error(msg string, keyvals ...any) { l.logger.Error(msg, keyvals...) }

// With returns a new logger with additional key-value pairs
func (l *charmLogger) With(keyvals ...any) Logger {
	return &charmLogger{logger: l.logger.With(keyvals...)}
}

// nopLogger is a no-op logger that discards all log messages
type nopLogger struct{}

// Debug is a no-op
func (nopLogger) Debug(msg string, keyvals ...any) {}

// Info is a no-op
func (nopLogger) Info(msg string, keyvals ...any) {}

// Warn is a no-op
func (nopLogger) Warn(msg string, keyvals ...any) {}

// Error is a no-op
func (nopLogger) Error(msg string, keyvals ...any) {}

// With returns a new nopLogger
func (n nopLogger) With(keyvals ...any) Logger {
	return n
}

// NopLogger returns a logger that discards all messages
func NopLogger() Logger {
	return nopLogger{}
}

// OrNop returns l, or a no-op logger when l is nil
func OrNop(l Logger) Logger {
	if l == nil {
		return NopLogger()
	}
	return l
}
