package logging

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New builds the service logger. Unknown levels fall back to info.
func New(service, environment, level string) zerolog.Logger {
	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}

	return zerolog.New(os.Stdout).
		Level(parsed).
		With().
		Timestamp().
		Str("service", service).
		Str("environment", environment).
		Logger()
}
