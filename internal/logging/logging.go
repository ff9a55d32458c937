// Package logging configures the process-wide logrus logger.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var logger = newLogger(os.Stderr)

func newLogger(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// Logger returns the shared logger.
func Logger() *logrus.Logger {
	return logger
}

// SetLevel parses a level name ("debug", "info", "warn", ...). Unknown names keep the current level.
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err //nolint:wrapcheck // logrus error already names the bad level
	}
	logger.SetLevel(lvl)
	return nil
}

// SetOutput redirects log output, used by tests and the --quiet flag.
func SetOutput(out io.Writer) {
	logger.SetOutput(out)
}

// WithComponent returns an entry tagged with the emitting component.
func WithComponent(name string) *logrus.Entry {
	return logger.WithField("component", name)
}
