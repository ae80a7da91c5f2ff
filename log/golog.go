package log

import "github.com/kataras/golog"

// Golog implements Logger using kataras/golog.
type Golog struct {
	logger *golog.Logger
	level  Level
}

var _ Logger = (*Golog)(nil)

// NewGolog wraps an existing golog.Logger at Info level.
func NewGolog(logger *golog.Logger) *Golog {
	return &Golog{
		logger: logger,
		level:  LevelInfo,
	}
}

// Debug logs debug messages.
func (l *Golog) Debug(format string, v ...any) {
	if l.level <= LevelDebug {
		l.logger.Debugf(format, v...)
	}
}

// Info logs informational messages.
func (l *Golog) Info(format string, v ...any) {
	if l.level <= LevelInfo {
		l.logger.Infof(format, v...)
	}
}

// Warn logs warning messages.
func (l *Golog) Warn(format string, v ...any) {
	if l.level <= LevelWarn {
		l.logger.Warnf(format, v...)
	}
}

// Error logs error messages.
func (l *Golog) Error(format string, v ...any) {
	if l.level <= LevelError {
		l.logger.Errorf(format, v...)
	}
}

// SetLevel sets both the wrapper's and the underlying golog level.
func (l *Golog) SetLevel(level Level) {
	l.level = level

	gologLevel := "info"
	switch level {
	case LevelDebug:
		gologLevel = "debug"
	case LevelInfo:
		gologLevel = "info"
	case LevelWarn:
		gologLevel = "warn"
	case LevelError:
		gologLevel = "error"
	case LevelNone:
		gologLevel = "disable"
	}
	l.logger.SetLevel(gologLevel)
}

// GetLevel returns the wrapper's current level.
func (l *Golog) GetLevel() Level {
	return l.level
}
