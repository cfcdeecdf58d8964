package observability

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// EndpointLogger derives the per-worker logger from the global one.
func EndpointLogger(endpoint, runID string) zerolog.Logger {
	return log.Logger.With().Str("endpoint", endpoint).Str("run_id", runID).Logger()
}
