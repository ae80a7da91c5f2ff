// Package log provides leveled logging for the hybrid retrieval engine.
// The default logger writes to stderr via the standard library; Golog wraps
// kataras/golog for callers that want colored, leveled output.
package log

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
)

// Level represents logging severity.
type Level int

const (
	// LevelDebug for detailed debugging information.
	LevelDebug Level = iota
	// LevelInfo for general informational messages.
	LevelInfo
	// LevelWarn for warning messages, including degraded fallbacks.
	LevelWarn
	// LevelError for error messages.
	LevelError
	// LevelNone disables all logging.
	LevelNone
)

// String returns the level name.
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
	case LevelNone:
		return "NONE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(l))
	}
}

// Logger is the logging contract used across the engine and the stores.
type Logger interface {
	Debug(format string, v ...any)
	Info(format string, v ...any)
	Warn(format string, v ...any)
	Error(format string, v ...any)
}

// Standard implements Logger using Go's standard log package.
type Standard struct {
	logger *stdlog.Logger
	level  Level
}

// NewStandard creates a stderr logger at the given level.
func NewStandard(level Level) *Standard {
	return &Standard{
		logger: stdlog.New(os.Stderr, "[hybridrag] ", stdlog.LstdFlags),
		level:  level,
	}
}

// NewStandardWithOutput creates a logger writing to out.
func NewStandardWithOutput(out io.Writer, level Level) *Standard {
	return &Standard{
		logger: stdlog.New(out, "[hybridrag] ", stdlog.LstdFlags),
		level:  level,
	}
}

// Debug logs debug messages.
func (l *Standard) Debug(format string, v ...any) {
	if l.level <= LevelDebug {
		l.logger.Printf("[DEBUG] "+format, v...)
	}
}

// Info logs informational messages.
func (l *Standard) Info(format string, v ...any) {
	if l.level <= LevelInfo {
		l.logger.Printf("[INFO] "+format, v...)
	}
}

// Warn logs warning messages.
func (l *Standard) Warn(format string, v ...any) {
	if l.level <= LevelWarn {
		l.logger.Printf("[WARN] "+format, v...)
	}
}

// Error logs error messages.
func (l *Standard) Error(format string, v ...any) {
	if l.level <= LevelError {
		l.logger.Printf("[ERROR] "+format, v...)
	}
}

// Nop is a Logger that discards everything.
type Nop struct{}

// Debug does nothing.
func (Nop) Debug(format string, v ...any) {}

// Info does nothing.
func (Nop) Info(format string, v ...any) {}

// Warn does nothing.
func (Nop) Warn(format string, v ...any) {}

// Error does nothing.
func (Nop) Error(format string, v ...any) {}

// Package-level logger, Info by default.
var defaultLogger Logger = NewStandard(LevelInfo)

// SetDefault sets the package-level logger so callers can enable logging
// globally without threading logger objects through constructors.
func SetDefault(logger Logger) {
	defaultLogger = logger
}

// Default returns the current package-level logger.
func Default() Logger {
	return defaultLogger
}

// Debug logs a debug message using the package-level logger.
func Debug(format string, v ...any) { defaultLogger.Debug(format, v...) }

// Info logs an informational message using the package-level logger.
func Info(format string, v ...any) { defaultLogger.Info(format, v...) }

// Warn logs a warning message using the package-level logger.
func Warn(format string, v ...any) { defaultLogger.Warn(format, v...) }

// Error logs an error message using the package-level logger.
func Error(format string, v ...any) { defaultLogger.Error(format, v...) }
