// Package logging provides the common structured-logging interface used
// across the sequencer, run lock table, and wire protocol parser.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Level represents the logging level.
type Level int

const (
	// LevelDebug level for detailed troubleshooting information.
	LevelDebug Level = iota
	// LevelInfo level for general operational information.
	LevelInfo
	// LevelWarn level for potentially harmful situations.
	LevelWarn
	// LevelError level for error events that might still allow the
	// component to continue.
	LevelError
	// LevelFatal level for severe error events that terminate the
	// process.
	LevelFatal
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
	case LevelFatal:
		return "FATAL"
	default:
		return fmt.Sprintf("LEVEL(%d)", l)
	}
}

// Logger is the interface components depend on for structured logging.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
	WithFields(fields map[string]interface{}) Logger
	WithField(key string, value interface{}) Logger
	GetLevel() Level
	SetLevel(level Level)
}

// StandardLogger implements Logger with a plain-text line format.
type StandardLogger struct {
	mu     sync.Mutex
	level  Level
	out    io.Writer
	fields map[string]interface{}
}

// NewStandardLogger creates a StandardLogger with the given options.
func NewStandardLogger(options ...LoggerOption) *StandardLogger {
	logger := &StandardLogger{
		level:  LevelInfo,
		out:    os.Stdout,
		fields: make(map[string]interface{}),
	}
	for _, option := range options {
		option(logger)
	}
	return logger
}

// LoggerOption configures a StandardLogger.
type LoggerOption func(*StandardLogger)

// WithLevel sets the logging level.
func WithLevel(level Level) LoggerOption {
	return func(l *StandardLogger) { l.level = level }
}

// WithOutput sets the output writer.
func WithOutput(out io.Writer) LoggerOption {
	return func(l *StandardLogger) { l.out = out }
}

// WithInitialFields sets initial fields for the logger.
func WithInitialFields(fields map[string]interface{}) LoggerOption {
	return func(l *StandardLogger) {
		for k, v := range fields {
			l.fields[k] = v
		}
	}
}

func (l *StandardLogger) log(level Level, msg string, args ...interface{}) {
	if level < l.level {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	formattedMsg := msg
	if len(args) > 0 {
		formattedMsg = fmt.Sprintf(msg, args...)
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05.000")

	fieldsStr := ""
	for k, v := range l.fields {
		fieldsStr += fmt.Sprintf(" %s=%v", k, v)
	}

	fmt.Fprintf(l.out, "[%s] [%s]%s %s\n", timestamp, level.String(), fieldsStr, formattedMsg)

	if level == LevelFatal {
		os.Exit(1)
	}
}

// Debug logs a debug-level message.
func (l *StandardLogger) Debug(msg string, args ...interface{}) { l.log(LevelDebug, msg, args...) }

// Info logs an info-level message.
func (l *StandardLogger) Info(msg string, args ...interface{}) { l.log(LevelInfo, msg, args...) }

// Warn logs a warning-level message.
func (l *StandardLogger) Warn(msg string, args ...interface{}) { l.log(LevelWarn, msg, args...) }

// Error logs an error-level message.
func (l *StandardLogger) Error(msg string, args ...interface{}) { l.log(LevelError, msg, args...) }

// Fatal logs a fatal-level message, then calls os.Exit(1).
func (l *StandardLogger) Fatal(msg string, args ...interface{}) { l.log(LevelFatal, msg, args...) }

// WithFields returns a new logger with the given fields added to the
// context.
func (l *StandardLogger) WithFields(fields map[string]interface{}) Logger {
	newLogger := &StandardLogger{
		level:  l.level,
		out:    l.out,
		fields: make(map[string]interface{}, len(l.fields)+len(fields)),
	}
	for k, v := range l.fields {
		newLogger.fields[k] = v
	}
	for k, v := range fields {
		newLogger.fields[k] = v
	}
	return newLogger
}

// WithField returns a new logger with a single field added to the context.
func (l *StandardLogger) WithField(key string, value interface{}) Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// GetLevel returns the current logging level.
func (l *StandardLogger) GetLevel() Level { return l.level }

// SetLevel sets the logging level.
func (l *StandardLogger) SetLevel(level Level) { l.level = level }

var defaultLogger = NewStandardLogger()

// SetDefaultLogger sets the package default logger instance.
func SetDefaultLogger(logger *StandardLogger) { defaultLogger = logger }

// Default returns the package default logger instance.
func Default() Logger { return defaultLogger }
