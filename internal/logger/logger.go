package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New builds the service logger. Level parses loosely; anything
// unrecognized falls back to info.
func New(level string, pretty bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var out io.Writer = os.Stderr
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr}
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Str("service", "peyk").Logger()
}
