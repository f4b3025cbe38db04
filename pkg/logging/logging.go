package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/phishguard/phish-triage/pkg/config"
)

// Setup configures the shared logger from config and returns it
func Setup(cfg config.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	var out io.Writer = os.Stderr
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			out = f
		} else {
			logger.WithError(err).Warn("failed to open log file, using stderr")
		}
	}
	logger.SetOutput(out)

	return logger
}

// Discard returns a logger that drops everything, for tests and library callers
// that do not want pipeline logs.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
