package services

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/caretrail/visit-pipeline/internal/domain/entities"
)

// UnknownSpeaker is assigned when no diarization turn overlaps a segment
// strongly enough.
const UnknownSpeaker = "Unknown"

// AlignmentService assigns speaker labels to transcript segments from
// diarization turns. Pure computation; persistence belongs to the caller.
type AlignmentService struct {
	overlapThreshold  float64
	defaultSpeaker    string
	caregiverKeywords []string
}

// NewAlignmentService creates an alignment service. overlapThreshold is the
// minimum overlap ratio for a turn to claim a segment; defaultSpeaker is used
// when diarization produced no turns at all.
func NewAlignmentService(overlapThreshold float64, defaultSpeaker string) *AlignmentService {
	if defaultSpeaker == "" {
		defaultSpeaker = "Speaker A"
	}
	return &AlignmentService{
		overlapThreshold: overlapThreshold,
		defaultSpeaker:   defaultSpeaker,
		caregiverKeywords: []string{
			"let me", "i'll", "time for", "do you need", "let's",
			"your medication", "how are you", "i will", "here's",
		},
	}
}

// Align returns a speaker label for every segment, keyed by segment ID.
// Greedy per-segment best-overlap assignment, O(segments x turns); ties keep
// the first-seen maximum.
func (s *AlignmentService) Align(segments []*entities.TranscriptSegment, turns []*entities.DiarizationTurn) map[string]string {
	labels := make(map[string]string, len(segments))

	// No turns at all is a degraded-but-valid input: label everything with
	// the default speaker instead of failing the stage.
	if len(turns) == 0 {
		for _, seg := range segments {
			labels[seg.ID] = s.defaultSpeaker
		}
		return labels
	}

	for _, seg := range segments {
		duration := seg.DurationMs()
		if duration <= 0 {
			labels[seg.ID] = UnknownSpeaker
			continue
		}

		var bestOverlap int64
		bestSpeaker := ""
		for _, turn := range turns {
			overlap := overlapMs(seg.StartMs, seg.EndMs, turn.StartMs, turn.EndMs)
			if overlap > bestOverlap {
				bestOverlap = overlap
				bestSpeaker = turn.Speaker
			}
		}

		if bestOverlap > 0 && float64(bestOverlap)/float64(duration) >= s.overlapThreshold {
			labels[seg.ID] = FormatSpeakerID(bestSpeaker)
		} else {
			labels[seg.ID] = UnknownSpeaker
		}
	}

	return labels
}

// InferCaregiver scores each labeled speaker by occurrences of directive
// caregiving language and returns the highest scorer. Advisory only; ties
// keep the first-encountered maximum. Returns "" when nothing is labeled.
func (s *AlignmentService) InferCaregiver(segments []*entities.TranscriptSegment) string {
	scores := map[string]int{}
	var order []string

	for _, seg := range segments {
		speaker := seg.SpeakerLabel
		if speaker == "" || speaker == UnknownSpeaker {
			continue
		}
		if _, seen := scores[speaker]; !seen {
			order = append(order, speaker)
		}

		lowered := strings.ToLower(seg.Text)
		for _, keyword := range s.caregiverKeywords {
			scores[speaker] += strings.Count(lowered, keyword)
		}
	}

	best := ""
	bestScore := -1
	for _, speaker := range order {
		if scores[speaker] > bestScore {
			best = speaker
			bestScore = scores[speaker]
		}
	}

	return best
}

// FormatSpeakerID maps an engine id of the pattern SPEAKER_<n> to
// "Speaker <letter>"; unparsable ids pass through unchanged.
func FormatSpeakerID(id string) string {
	suffix, ok := strings.CutPrefix(id, "SPEAKER_")
	if !ok {
		return id
	}

	n, err := strconv.Atoi(suffix)
	if err != nil || n < 0 || n > 25 {
		return id
	}

	return fmt.Sprintf("Speaker %c", rune('A'+n))
}

func overlapMs(aStart, aEnd, bStart, bEnd int64) int64 {
	start := aStart
	if bStart > start {
		start = bStart
	}
	end := aEnd
	if bEnd < end {
		end = bEnd
	}
	if end <= start {
		return 0
	}
	return end - start
}
