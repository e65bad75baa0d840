package entities

import (
	"time"
)

// TranscriptSegment is a timed unit of transcribed speech. Segments are
// immutable once written; re-running transcription replaces them.
type TranscriptSegment struct {
	ID           string    `json:"id" db:"id"`
	VisitID      string    `json:"visit_id" db:"visit_id"`
	StartMs      int64     `json:"start_ms" db:"start_ms"`
	EndMs        int64     `json:"end_ms" db:"end_ms"`
	Text         string    `json:"text" db:"text"`
	SpeakerLabel string    `json:"speaker_label,omitempty" db:"speaker_label"`
	Confidence   *float64  `json:"confidence,omitempty" db:"confidence"`
	Source       string    `json:"source" db:"source"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// DurationMs returns the segment span in milliseconds.
func (s *TranscriptSegment) DurationMs() int64 {
	return s.EndMs - s.StartMs
}

// DiarizationTurn is a timed unit of speaker-attributed audio. The speaker id
// is opaque and engine-assigned (e.g. "SPEAKER_00"). Read-only input to
// alignment.
type DiarizationTurn struct {
	ID         string    `json:"id" db:"id"`
	VisitID    string    `json:"visit_id" db:"visit_id"`
	Speaker    string    `json:"speaker" db:"speaker"`
	StartMs    int64     `json:"start_ms" db:"start_ms"`
	EndMs      int64     `json:"end_ms" db:"end_ms"`
	Confidence *float64  `json:"confidence,omitempty" db:"confidence"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
