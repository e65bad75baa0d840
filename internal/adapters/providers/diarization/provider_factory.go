package diarization

import (
	"github.com/rs/zerolog/log"

	"github.com/caretrail/visit-pipeline/internal/domain/providers"
	"github.com/caretrail/visit-pipeline/pkg/config"
)

// NewDiarizationProvider selects the configured provider. The real provider
// carries the mock as its degraded fallback for auth failures.
func NewDiarizationProvider(cfg *config.EnginesConfig) providers.DiarizationProvider {
	switch cfg.DiarizationProvider {
	case "pyannote":
		if cfg.DiarizationURL == "" {
			log.Warn().Msg("DIARIZATION_URL not set, falling back to mock diarization provider")
			return NewMockDiarizationProvider()
		}
		return NewPyannoteProvider(cfg.DiarizationURL, cfg.DiarizationToken, NewMockDiarizationProvider())
	default:
		return NewMockDiarizationProvider()
	}
}
