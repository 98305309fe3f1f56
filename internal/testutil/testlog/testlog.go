package testlog

import (
	"testing"

	"github.com/danmuck/sockwrap/internal/logging"
	"github.com/danmuck/sockwrap/internal/observability"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Start configures the test log profile and logs the test name.
func Start(t *testing.T) {
	t.Helper()
	logging.ConfigureTests()
	log.Info().Str("test", t.Name()).Msg("start")
}

// Observer returns an Observer writing through the test log.
func Observer(t *testing.T) logging.Observer {
	t.Helper()
	logging.ConfigureTests()
	return logging.NewZerolog(Logger(t))
}

// Logger returns a logger that writes to t.Log.
func Logger(t *testing.T) zerolog.Logger {
	t.Helper()
	s := logging.Current()
	s.NoColor = true
	return observability.NewLogger(t.Name(), zerolog.TestWriter{T: t}, s)
}
