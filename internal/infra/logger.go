package infra

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the structured logger passed through the pipeline.
type Logger = zerolog.Logger

// ServiceName tags every log line of the pipeline processes.
const ServiceName = "creatives"

// NewLogger returns a JSON logger for process component ("api", "worker",
// ...). Development uses debug level and console output.
func NewLogger(appEnv, component string) Logger {
	return newLogger(os.Stdout, appEnv, component)
}

func newLogger(w io.Writer, appEnv, component string) Logger {
	level := zerolog.InfoLevel
	if appEnv == "development" {
		level = zerolog.DebugLevel
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	ctx := zerolog.New(w).Level(level).With().Timestamp().Str("service", ServiceName)
	if component != "" {
		ctx = ctx.Str("component", component)
	}
	return ctx.Logger()
}
