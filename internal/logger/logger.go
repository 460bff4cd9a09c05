// Package logger configures the application-wide zerolog logger.
package logger

import (
	"os"

	"github.com/rs/zerolog"
)

// New returns the root logger. Components derive scoped loggers from it
// with With().Str("service", ...).
func New(env string) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	// ConsoleWriter for local development for more readable logs.
	if env == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.DebugLevel)
		return logger
	}

	return logger.Level(zerolog.InfoLevel)
}
