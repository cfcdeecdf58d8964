package testlog

import (
	"testing"

	"github.com/danmuck/ircctl/internal/logging"
	"github.com/rs/zerolog/log"
)

// Start configures the test logging profile and tags the output with the test name.
func Start(t *testing.T) {
	t.Helper()
	logging.ConfigureTests()
	log.Info().Str("test", t.Name()).Msg("test.start")
}

// Logf writes a debug trace line from a test body.
func Logf(format string, args ...any) {
	log.Debug().Msgf(format, args...)
}
