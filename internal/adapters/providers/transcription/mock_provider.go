package transcription

import (
	"context"
	"hash/fnv"

	"github.com/caretrail/visit-pipeline/internal/domain/providers"
)

// MockTranscriptionProvider implements a deterministic transcription provider
// for development and test environments where no ASR engine is reachable.
// Output depends only on the audio bytes, so stage re-runs are reproducible.
type MockTranscriptionProvider struct{}

// NewMockTranscriptionProvider creates a new mock transcription provider
func NewMockTranscriptionProvider() providers.TranscriptionProvider {
	return &MockTranscriptionProvider{}
}

var mockScript = []string{
	"Good morning, it's time for your medication now.",
	"Thank you dear, I already had my water.",
	"Let me get breakfast started, some eggs and toast.",
	"That sounds lovely, I am quite hungry today.",
	"I'll check your blood pressure after we eat.",
	"How are you feeling this morning overall?",
}

// Transcribe returns a fixed conversation spread evenly across a span derived
// from the audio length.
func (m *MockTranscriptionProvider) Transcribe(ctx context.Context, audio []byte) (*providers.TranscriptionResult, error) {
	// Derive a stable span from the payload so distinct uploads differ.
	h := fnv.New32a()
	h.Write(audio)
	spanMs := int64(600000) + int64(h.Sum32()%4)*300000

	segmentMs := spanMs / int64(len(mockScript))
	confidence := 0.92

	segments := make([]providers.RawSegment, 0, len(mockScript))
	for i, text := range mockScript {
		start := int64(i) * segmentMs
		segments = append(segments, providers.RawSegment{
			StartMs:    start,
			EndMs:      start + segmentMs,
			Text:       text,
			Confidence: &confidence,
		})
	}

	return &providers.TranscriptionResult{Segments: segments, Engine: "mock"}, nil
}
