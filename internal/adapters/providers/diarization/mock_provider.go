package diarization

import (
	"context"

	"github.com/caretrail/visit-pipeline/internal/domain/providers"
)

// MockDiarizationProvider implements a deterministic diarization provider.
// It alternates two speakers over a fixed span, which pairs with the mock
// transcription script in development environments.
type MockDiarizationProvider struct{}

// NewMockDiarizationProvider creates a new mock diarization provider
func NewMockDiarizationProvider() providers.DiarizationProvider {
	return &MockDiarizationProvider{}
}

// Diarize returns alternating speaker turns across a ten-minute span.
func (m *MockDiarizationProvider) Diarize(ctx context.Context, audio []byte, minSpeakers, maxSpeakers int) (*providers.DiarizationResult, error) {
	const spanMs = int64(600000)
	const turnMs = int64(100000)

	speakers := maxSpeakers
	if speakers < 1 {
		speakers = 1
	}
	if speakers > 2 {
		speakers = 2
	}

	confidence := 0.88
	var turns []providers.RawTurn
	for start := int64(0); start < spanMs; start += turnMs {
		speaker := "SPEAKER_00"
		if speakers > 1 && (start/turnMs)%2 == 1 {
			speaker = "SPEAKER_01"
		}
		turns = append(turns, providers.RawTurn{
			Speaker:    speaker,
			StartMs:    start,
			EndMs:      start + turnMs,
			Confidence: &confidence,
		})
	}

	return &providers.DiarizationResult{Turns: turns, Engine: "mock"}, nil
}
