// Package logging defines the structured-logging interface every dispatcher
// component is scoped with, so call sites never import logrus directly
// (grounded on firestige-Otus's otus-packet/pkg/log package).
package logging

// Logger is a leveled, structured logger. Fields attached via WithField /
// WithFields are carried by every subsequent call on the returned Logger.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	WithField(key string, value interface{}) Logger
	WithFields(fields Fields) Logger
	WithError(err error) Logger
}

// Fields is a set of structured log fields attached to a Logger call.
type Fields map[string]interface{}
