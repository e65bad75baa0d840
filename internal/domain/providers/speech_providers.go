package providers

import (
	"context"
)

// RawSegment is a transcription engine output span before persistence.
type RawSegment struct {
	StartMs    int64
	EndMs      int64
	Text       string
	Confidence *float64
}

// RawTurn is a diarization engine output turn before persistence.
type RawTurn struct {
	Speaker    string
	StartMs    int64
	EndMs      int64
	Confidence *float64
}

// TranscriptionResult is the full output of one transcription call.
type TranscriptionResult struct {
	Segments []RawSegment
	Engine   string
}

// DiarizationResult is the full output of one diarization call. Degraded is
// set when the provider substituted fallback turns (e.g. after an auth
// failure) instead of real engine output.
type DiarizationResult struct {
	Turns    []RawTurn
	Engine   string
	Degraded bool
}

// TranscriptionProvider converts an audio reference into timed transcript
// segments. Implementations must return segments ordered by StartMs.
type TranscriptionProvider interface {
	Transcribe(ctx context.Context, audio []byte) (*TranscriptionResult, error)
}

// DiarizationProvider converts an audio reference into speaker-attributed
// turns within the configured speaker-count bounds.
type DiarizationProvider interface {
	Diarize(ctx context.Context, audio []byte, minSpeakers, maxSpeakers int) (*DiarizationResult, error)
}

// AudioStore fetches source audio from object storage by key. The audio is
// opaque to this system.
type AudioStore interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}
