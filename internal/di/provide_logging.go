package di

import (
	"os"

	"github.com/rs/zerolog"
)

// ProvideLogger creates a zerolog.Logger configured for the runtime
// environment: JSON in Lambda, pretty console output in a terminal.
func ProvideLogger() zerolog.Logger {
	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		return zerolog.New(os.Stdout).
			Level(zerolog.InfoLevel).
			With().
			Timestamp().
			Logger()
	}

	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		Level(zerolog.InfoLevel).
		With().
		Timestamp().
		Logger()
}
