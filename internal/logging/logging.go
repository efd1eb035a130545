// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options selects the log level and format
type Options struct {
	Verbose bool
	// Quiet only reports warnings and errors
	Quiet bool
	// JSON writes structured lines instead of the console format
	JSON   bool
	Writer io.Writer // defaults to stderr
}

// Init initializes the global logger
func Init(opts Options) {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(Level(opts))

	out := opts.Writer
	if out == nil {
		out = os.Stderr
	}
	if !opts.JSON {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "15:04:05",
			NoColor:    out != os.Stderr,
		}
	}

	log.Logger = NewLogger(out)
}

// Level maps the options to a zerolog level; Verbose wins over Quiet
func Level(opts Options) zerolog.Level {
	switch {
	case opts.Verbose:
		return zerolog.DebugLevel
	case opts.Quiet:
		return zerolog.WarnLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with optional writers
func NewLogger(writers ...io.Writer) zerolog.Logger {
	if len(writers) == 0 {
		return log.Logger
	}

	if len(writers) == 1 {
		return zerolog.New(writers[0]).With().Timestamp().Logger()
	}

	multi := zerolog.MultiLevelWriter(writers...)
	return zerolog.New(multi).With().Timestamp().Logger()
}

// WithComponent creates a logger with a component field
func WithComponent(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}
