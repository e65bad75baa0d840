package repositories

import (
	"context"

	"github.com/caretrail/visit-pipeline/internal/domain/entities"
)

// TranscriptRepository defines the interface for transcript segment and
// diarization turn storage. Segments and turns are always scoped to one visit.
type TranscriptRepository interface {
	// ReplaceSegments atomically replaces all segments for a visit. Re-runs
	// must replace, never append.
	ReplaceSegments(ctx context.Context, visitID string, segments []*entities.TranscriptSegment) error

	// ListSegments retrieves a visit's segments ordered by start_ms
	ListSegments(ctx context.Context, visitID string) ([]*entities.TranscriptSegment, error)

	// UpdateSpeakerLabels writes alignment output onto existing segments
	UpdateSpeakerLabels(ctx context.Context, visitID string, labels map[string]string) error

	// ReplaceTurns atomically replaces all diarization turns for a visit
	ReplaceTurns(ctx context.Context, visitID string, turns []*entities.DiarizationTurn) error

	// ListTurns retrieves a visit's turns ordered by start_ms
	ListTurns(ctx context.Context, visitID string) ([]*entities.DiarizationTurn, error)
}
