package transcription

import (
	"github.com/rs/zerolog/log"

	"github.com/caretrail/visit-pipeline/internal/domain/providers"
	"github.com/caretrail/visit-pipeline/pkg/config"
)

// NewTranscriptionProvider selects the configured provider. The deterministic
// mock is an explicit configuration choice, not an import-failure fallback.
func NewTranscriptionProvider(cfg *config.EnginesConfig) providers.TranscriptionProvider {
	switch cfg.TranscriptionProvider {
	case "whisper":
		if cfg.TranscriptionURL == "" {
			log.Warn().Msg("TRANSCRIPTION_URL not set, falling back to mock transcription provider")
			return NewMockTranscriptionProvider()
		}
		return NewWhisperProvider(cfg.TranscriptionURL, cfg.TranscriptionAPIKey)
	default:
		return NewMockTranscriptionProvider()
	}
}
