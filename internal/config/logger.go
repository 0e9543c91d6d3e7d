package config

import (
	"os"

	"github.com/rs/zerolog"
)

// NewLogger builds the root logger for a binary. dev gets a console writer.
func NewLogger(cfg Config, service string) zerolog.Logger {
	logger := zerolog.New(os.Stdout)
	if cfg.Env == "dev" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout})
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	return logger.Level(level).With().Timestamp().Str("service", service).Logger()
}
