package observability

import (
	"io"
	"os"
	"time"

	"github.com/danmuck/sockwrap/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger configures the runtime log profile, builds the process logger
// and installs it as the zerolog global.
func InitLogger(app string) zerolog.Logger {
	logging.ConfigureRuntime()
	logger := NewLogger(app, os.Stderr, logging.Current())
	log.Logger = logger
	return logger
}

func NewLogger(app string, out io.Writer, s logging.Settings) zerolog.Logger {
	if s.Bypass {
		return zerolog.Nop()
	}
	output := zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    s.NoColor,
		TimeFormat: time.RFC3339,
	}
	ctx := zerolog.New(output).Level(s.Level).With().Str("app", app)
	if s.Timestamp {
		ctx = ctx.Timestamp()
	}
	return ctx.Logger()
}
