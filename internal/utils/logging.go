package utils

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetupZerolog configures the global logger. format "json" writes one JSON object per line,
// anything else is the human console output. Unknown levels fall back to info.
func SetupZerolog(level string, format string) {
	SetupZerologTo(os.Stdout, level, format)
}

func SetupZerologTo(out io.Writer, level string, format string) {
	var output io.Writer = out
	if format != "json" {
		// Set up zerolog with custom output to include milliseconds in the timestamp
		output = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "2006-01-02T15:04:05.000-07:00", // Fake news, BUT we need milliseconds to debug stuff.
		}
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
	// https://github.com/rs/zerolog/issues/114
	zerolog.TimeFieldFormat = time.RFC3339Nano

	parsed, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
	// zerolog.Ctx(ctx) without a request logger should still end up somewhere.
	zerolog.DefaultContextLogger = &log.Logger
}
