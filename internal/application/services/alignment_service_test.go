package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caretrail/visit-pipeline/internal/domain/entities"
)

func seg(id string, startMs, endMs int64, text string) *entities.TranscriptSegment {
	return &entities.TranscriptSegment{ID: id, StartMs: startMs, EndMs: endMs, Text: text}
}

func turn(speaker string, startMs, endMs int64) *entities.DiarizationTurn {
	return &entities.DiarizationTurn{Speaker: speaker, StartMs: startMs, EndMs: endMs}
}

func TestAlign(t *testing.T) {
	svc := NewAlignmentService(0.5, "Speaker A")

	t.Run("assigns speaker with majority overlap", func(t *testing.T) {
		segments := []*entities.TranscriptSegment{seg("s1", 0, 1000, "hello")}
		turns := []*entities.DiarizationTurn{
			turn("SPEAKER_00", 0, 800),
			turn("SPEAKER_01", 800, 2000),
		}

		labels := svc.Align(segments, turns)

		require.Len(t, labels, 1)
		assert.Equal(t, "Speaker A", labels["s1"])
	})

	t.Run("below threshold yields unknown", func(t *testing.T) {
		segments := []*entities.TranscriptSegment{seg("s1", 0, 1000, "hello")}
		turns := []*entities.DiarizationTurn{turn("SPEAKER_00", 0, 400)}

		labels := svc.Align(segments, turns)

		assert.Equal(t, UnknownSpeaker, labels["s1"])
	})

	t.Run("exactly at threshold is assigned", func(t *testing.T) {
		segments := []*entities.TranscriptSegment{seg("s1", 0, 1000, "hello")}
		turns := []*entities.DiarizationTurn{turn("SPEAKER_01", 0, 500)}

		labels := svc.Align(segments, turns)

		assert.Equal(t, "Speaker B", labels["s1"])
	})

	t.Run("no turns defaults every segment", func(t *testing.T) {
		segments := []*entities.TranscriptSegment{
			seg("s1", 0, 1000, "hello"),
			seg("s2", 1000, 2000, "there"),
		}

		labels := svc.Align(segments, nil)

		assert.Equal(t, "Speaker A", labels["s1"])
		assert.Equal(t, "Speaker A", labels["s2"])
	})

	t.Run("zero duration segment is unknown", func(t *testing.T) {
		segments := []*entities.TranscriptSegment{seg("s1", 500, 500, "")}
		turns := []*entities.DiarizationTurn{turn("SPEAKER_00", 0, 1000)}

		labels := svc.Align(segments, turns)

		assert.Equal(t, UnknownSpeaker, labels["s1"])
	})

	t.Run("tie keeps first seen speaker", func(t *testing.T) {
		segments := []*entities.TranscriptSegment{seg("s1", 0, 1000, "hello")}
		turns := []*entities.DiarizationTurn{
			turn("SPEAKER_00", 0, 500),
			turn("SPEAKER_01", 500, 1000),
		}

		labels := svc.Align(segments, turns)

		assert.Equal(t, "Speaker A", labels["s1"])
	})

	t.Run("zero threshold with no overlapping turn is unknown", func(t *testing.T) {
		zero := NewAlignmentService(0, "Speaker A")
		segments := []*entities.TranscriptSegment{seg("s1", 0, 1000, "hello")}
		turns := []*entities.DiarizationTurn{turn("SPEAKER_00", 2000, 3000)}

		labels := zero.Align(segments, turns)

		assert.Equal(t, UnknownSpeaker, labels["s1"])
	})
}

// Raising the threshold can only turn labeled segments unknown, never the
// reverse.
func TestAlignThresholdMonotonicity(t *testing.T) {
	segments := []*entities.TranscriptSegment{
		seg("s1", 0, 1000, "a"),
		seg("s2", 1000, 2000, "b"),
		seg("s3", 2000, 3000, "c"),
		seg("s4", 3000, 4000, "d"),
	}
	// Best overlap ratios per segment: 0.3, 0.5, 0.7, 1.0.
	turns := []*entities.DiarizationTurn{
		turn("SPEAKER_00", 0, 300),
		turn("SPEAKER_00", 1000, 1500),
		turn("SPEAKER_01", 2000, 2700),
		turn("SPEAKER_01", 3000, 4000),
	}

	thresholds := []float64{0.2, 0.4, 0.6, 0.8, 1.0}
	previous := map[string]string{}
	for i, threshold := range thresholds {
		labels := NewAlignmentService(threshold, "Speaker A").Align(segments, turns)

		if i > 0 {
			for id, prev := range previous {
				if prev == UnknownSpeaker {
					assert.Equal(t, UnknownSpeaker, labels[id],
						"threshold %.1f relabeled %s after it was unknown", threshold, id)
				} else if labels[id] != UnknownSpeaker {
					assert.Equal(t, prev, labels[id])
				}
			}
		}
		previous = labels
	}

	strict := NewAlignmentService(1.0, "Speaker A").Align(segments, turns)
	assert.Equal(t, UnknownSpeaker, strict["s1"])
	assert.Equal(t, UnknownSpeaker, strict["s2"])
	assert.Equal(t, UnknownSpeaker, strict["s3"])
	assert.Equal(t, "Speaker B", strict["s4"])
}

func TestFormatSpeakerID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"first speaker", "SPEAKER_00", "Speaker A"},
		{"second speaker", "SPEAKER_01", "Speaker B"},
		{"third speaker", "SPEAKER_02", "Speaker C"},
		{"last letter", "SPEAKER_25", "Speaker Z"},
		{"beyond letters passes through", "SPEAKER_26", "SPEAKER_26"},
		{"unparsable passes through", "SPEAKER_x", "SPEAKER_x"},
		{"foreign label passes through", "agent-1", "agent-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatSpeakerID(tt.input))
		})
	}
}

func TestInferCaregiver(t *testing.T) {
	svc := NewAlignmentService(0.5, "Speaker A")

	t.Run("picks speaker using caregiver phrasing", func(t *testing.T) {
		segments := []*entities.TranscriptSegment{
			{ID: "s1", StartMs: 0, EndMs: 1000, Text: "Let me get your medication ready.", SpeakerLabel: "Speaker A"},
			{ID: "s2", StartMs: 1000, EndMs: 2000, Text: "Thank you dear.", SpeakerLabel: "Speaker B"},
			{ID: "s3", StartMs: 2000, EndMs: 3000, Text: "Time for lunch, do you need anything?", SpeakerLabel: "Speaker A"},
		}

		assert.Equal(t, "Speaker A", svc.InferCaregiver(segments))
	})

	t.Run("no labeled segments yields empty", func(t *testing.T) {
		segments := []*entities.TranscriptSegment{
			{ID: "s1", StartMs: 0, EndMs: 1000, Text: "hello", SpeakerLabel: UnknownSpeaker},
		}

		assert.Equal(t, "", svc.InferCaregiver(segments))
	})
}
