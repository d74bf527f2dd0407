package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options selects level and output format of the global logger.
type Options struct {
	Verbose bool
	// JSON writes one JSON object per line instead of console output,
	// for workers whose stderr is collected by a log shipper.
	JSON bool
	// Out defaults to stderr.
	Out io.Writer
}

// Init initializes the global logger
func Init(opts Options) {
	zerolog.TimeFieldFormat = time.RFC3339

	level := zerolog.InfoLevel
	if opts.Verbose {
		level = zerolog.DebugLevel
	}

	zerolog.SetGlobalLevel(level)

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	if !opts.JSON {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "15:04:05",
		}
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}

// WithComponent creates a logger with a component field
func WithComponent(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}

// WithJob tags every entry of logger with the render job id.
func WithJob(logger zerolog.Logger, jobID string) zerolog.Logger {
	return logger.With().Str("job", jobID).Logger()
}
