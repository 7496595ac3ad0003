// Package logging configures the zerolog logger shared by every component
// and provides the echo request logging middleware.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"evalgo.org/realmgate/internal/config"
)

// Init builds the process logger from the logging config and installs it
// as the global zerolog logger.
func Init(app string, cfg config.LoggingConfig) zerolog.Logger {
	return InitWriter(app, cfg, os.Stdout)
}

// InitWriter is Init with an explicit output.
func InitWriter(app string, cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Str("app", app).Logger()
	log.Logger = logger
	return logger
}

// Component returns a child logger tagged with the component name.
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}
