// Package logging provides structured logging for the fieldsync agent.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	// global logger instance
	global *logrus.Logger
	once   sync.Once
)

// Init initializes the global logger. Level accepts the usual logrus level
// names ("debug", "info", "warn", "error"); anything unparsable falls back
// to info.
func Init(out io.Writer, level string) {
	once.Do(func() {
		global = logrus.New()
		global.SetOutput(out)
		global.SetFormatter(&logrus.JSONFormatter{})

		lvl, err := logrus.ParseLevel(level)
		if err != nil {
			lvl = logrus.InfoLevel
		}
		global.SetLevel(lvl)
	})
}

// Get returns the global logger instance.
func Get() *logrus.Logger {
	if global == nil {
		Init(os.Stdout, "info")
	}
	return global
}

// Fields is an alias for logrus.Fields, so callers don't import logrus
// directly for the common case.
type Fields = logrus.Fields

// Convenience functions using the global logger

func Debug(message string, fields Fields) {
	Get().WithFields(fields).Debug(message)
}

func Info(message string, fields Fields) {
	Get().WithFields(fields).Info(message)
}

func Warn(message string, fields Fields) {
	Get().WithFields(fields).Warn(message)
}

func Error(message string, err error, fields Fields) {
	entry := Get().WithFields(fields)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Error(message)
}
