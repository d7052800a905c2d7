// Package logger is a thin key/value facade over logrus shared by every
// component of the bridge.
package logger

import (
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

func SetLevel(level logrus.Level) {
	log.SetLevel(level)
}

func SetFormatter(formatter logrus.Formatter) {
	log.SetFormatter(formatter)
}

func Debug(msg string, keysAndValues ...any) {
	if len(keysAndValues) > 0 {
		log.WithFields(toFields(keysAndValues)).Debug(msg)
	} else {
		log.Debug(msg)
	}
}

func Info(msg string, keysAndValues ...any) {
	if len(keysAndValues) > 0 {
		log.WithFields(toFields(keysAndValues)).Info(msg)
	} else {
		log.Info(msg)
	}
}

func Warn(msg string, keysAndValues ...any) {
	if len(keysAndValues) > 0 {
		log.WithFields(toFields(keysAndValues)).Warn(msg)
	} else {
		log.Warn(msg)
	}
}

func Error(msg string, keysAndValues ...any) {
	if len(keysAndValues) > 0 {
		log.WithFields(toFields(keysAndValues)).Error(msg)
	} else {
		log.Error(msg)
	}
}

// WithError logs an error-level message carrying err as its only field, for
// call sites with no extra context worth attaching.
func WithError(err error, msg string) {
	log.WithError(err).Error(msg)
}

func toFields(keysAndValues []any) logrus.Fields {
	fields := make(logrus.Fields)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			fields[key] = keysAndValues[i+1]
		}
	}
	return fields
}
