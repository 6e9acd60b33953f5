package config

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

func parseLevel(s string) (logrus.Level, error) {
	switch s {
	case "error", "warn", "info", "debug", "trace":
		return logrus.ParseLevel(s)
	case "":
		return logrus.InfoLevel, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// NewLogger returns a logger writing to stderr at the configured level.
func NewLogger(c *Config) *logrus.Logger {
	return NewLoggerTo(c, os.Stderr)
}

func NewLoggerTo(c *Config, w io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}
