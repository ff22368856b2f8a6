package logger

import (
	"io"

	"github.com/ideamans/go-l10n"
	"github.com/sirupsen/logrus"
	"github.com/user/pointstream/pkg/ports"
)

// StructuredLogger emits leveled events through logrus, carrying the
// component and any session fields as structured fields.
type StructuredLogger struct {
	entry *logrus.Entry
	level ports.LogLevel
}

// NewStructured creates a logrus-backed logger. format is "json" or "text".
func NewStructured(level ports.LogLevel, format string, out io.Writer) *StructuredLogger {
	base := logrus.New()
	base.SetOutput(out)
	if format == "json" {
		base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
	}
	base.SetLevel(toLogrusLevel(level))

	return &StructuredLogger{entry: logrus.NewEntry(base), level: level}
}

// WithField returns a logger that adds key=value to every event.
func (l *StructuredLogger) WithField(key string, value interface{}) *StructuredLogger {
	return &StructuredLogger{entry: l.entry.WithField(key, value), level: l.level}
}

func (l *StructuredLogger) Debug(msg string, args ...interface{}) {
	if l.level > ports.LevelDebug {
		return
	}
	l.entry.Debug(l10n.F(msg, args...))
}

func (l *StructuredLogger) Info(msg string, args ...interface{}) {
	if l.level > ports.LevelInfo {
		return
	}
	l.entry.Info(l10n.F(msg, args...))
}

func (l *StructuredLogger) Warn(msg string, args ...interface{}) {
	if l.level > ports.LevelWarn {
		return
	}
	l.entry.Warn(l10n.F(msg, args...))
}

func (l *StructuredLogger) Error(msg string, args ...interface{}) {
	if l.level > ports.LevelError {
		return
	}
	l.entry.Error(l10n.F(msg, args...))
}

// WithComponent returns a logger with the component field set.
func (l *StructuredLogger) WithComponent(component string) ports.Logger {
	return l.WithField("component", component)
}

func toLogrusLevel(level ports.LogLevel) logrus.Level {
	switch level {
	case ports.LevelDebug:
		return logrus.DebugLevel
	case ports.LevelWarn:
		return logrus.WarnLevel
	case ports.LevelError, ports.LevelQuiet:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

var _ ports.Logger = (*StructuredLogger)(nil)
