package testlog

import (
	"testing"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/defmt-print/internal/logging"
)

// Start routes diagnostics through the test logging profile and marks
// the beginning of t in the log.
func Start(t *testing.T) {
	t.Helper()
	logging.ConfigureTests()
	log.Info().Str("test", t.Name()).Msg("start")
}
