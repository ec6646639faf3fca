// Package logging configures the process-wide logrus logger from LogConfig.
package logging

import (
	"strings"

	"guestbook/internal/config"

	"github.com/sirupsen/logrus"
)

// Setup applies level and format to the standard logrus logger.
// Format "json" produces JSON lines, anything else the text formatter with
// full timestamps. Unknown levels fall back to info.
func Setup(cfg config.LogConfig) {
	if strings.EqualFold(cfg.Format, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	logrus.SetLevel(ParseLevel(cfg.Level))
}

func ParseLevel(s string) logrus.Level {
	level, err := logrus.ParseLevel(strings.TrimSpace(s))
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}
