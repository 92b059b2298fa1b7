// Package logger provides structured diagnostic logging for certscan.
package logger

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vulnverified/certscan/internal/engine"
)

// Fields represents structured log fields
type Fields map[string]interface{}

// Logger wraps logrus.Logger with certscan helpers.
type Logger struct {
	*logrus.Logger
}

// New creates a logger writing to stderr, as JSON when jsonFormat is set.
func New(level logrus.Level, jsonFormat bool) *Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(level)

	if jsonFormat {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}

	return &Logger{Logger: l}
}

// ParseLevel is logrus.ParseLevel falling back to info.
func ParseLevel(s string) logrus.Level {
	level, err := logrus.ParseLevel(s)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// WithFields adds multiple fields to the logger
func (l *Logger) WithFields(fields Fields) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields(fields))
}

// WithScan tags entries with the scan kind and id.
func (l *Logger) WithScan(kind, id string) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"scan":    kind,
		"scan_id": id,
	})
}

// Sink forwards scan log entries to entry at the level matching their
// severity. Success entries are logged at info with severity=success.
func Sink(entry *logrus.Entry) engine.LogSink {
	return func(e engine.LogEntry) {
		switch e.Severity {
		case engine.SeverityError:
			entry.Error(e.Message)
		case engine.SeverityWarn:
			entry.Warn(e.Message)
		default:
			entry.WithField("severity", string(e.Severity)).Info(e.Message)
		}
	}
}
