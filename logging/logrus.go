package logging

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// logrusLogger backs Logger with github.com/sirupsen/logrus, matching
// firestige-Otus's pkg/log/logrus.go adapter shape.
type logrusLogger struct {
	entry *logrus.Entry
}

var defaultLogger *logrusLogger

func init() {
	l := logrus.New()
	l.SetLevel(levelFromEnv())
	defaultLogger = &logrusLogger{entry: logrus.NewEntry(l)}
}

// Default returns the package-wide logger, leveled from the LOG_LEVEL
// environment variable per spec.md §6.
func Default() Logger { return defaultLogger }

// New constructs a standalone logrus-backed Logger at the given level name
// (any logrus.ParseLevel-recognized string; invalid input keeps "info").
func New(levelName string) Logger {
	l := logrus.New()
	if lvl, err := logrus.ParseLevel(levelName); err == nil {
		l.SetLevel(lvl)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return &logrusLogger{entry: logrus.NewEntry(l)}
}

func levelFromEnv() logrus.Level {
	v := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if v == "" {
		return logrus.InfoLevel
	}
	if lvl, err := logrus.ParseLevel(v); err == nil {
		return lvl
	}
	return logrus.InfoLevel
}

func (l *logrusLogger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *logrusLogger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *logrusLogger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *logrusLogger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

func (l *logrusLogger) WithField(key string, value interface{}) Logger {
	return &logrusLogger{entry: l.entry.WithField(key, value)}
}

func (l *logrusLogger) WithFields(fields Fields) Logger {
	return &logrusLogger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

func (l *logrusLogger) WithError(err error) Logger {
	return &logrusLogger{entry: l.entry.WithError(err)}
}
