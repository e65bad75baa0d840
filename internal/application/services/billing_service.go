package services

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/caretrail/visit-pipeline/internal/domain/entities"
)

// BillingService turns aligned transcript segments into categorized,
// auditable billable blocks. Pure computation over its inputs; given the same
// segments and thresholds the output block set is identical.
type BillingService struct {
	rules           []BillingRule
	minBlockMinutes int
	minGapMs        int64
}

// NewBillingService creates a billing service with the given rule table and
// thresholds.
func NewBillingService(rules []BillingRule, minBlockMinutes int, minGapMs int64) *BillingService {
	if len(rules) == 0 {
		rules = DefaultRuleTable()
	}
	return &BillingService{
		rules:           rules,
		minBlockMinutes: minBlockMinutes,
		minGapMs:        minGapMs,
	}
}

// candidateBlock is an intermediate block before consolidation
type candidateBlock struct {
	rule     BillingRule
	ruleIdx  int
	startMs  int64
	endMs    int64
	minutes  int
	evidence []entities.BlockEvidence
}

// BuildBlocks computes the full block set for a visit spanning
// [visitStartMs, visitEndMs). Steps: detect task categories per segment,
// coalesce contiguous same-category matches, fill uncovered spans with
// companionship coverage, consolidate nearby same-category blocks, flag
// blocks under the minimum billable duration.
func (s *BillingService) BuildBlocks(visitID string, segments []*entities.TranscriptSegment, visitStartMs, visitEndMs int64) []*entities.BillableBlock {
	candidates := s.detectCandidates(segments)
	candidates = append(candidates, s.coverGaps(candidates, segments, visitStartMs, visitEndMs)...)

	sortCandidates(candidates)
	candidates = s.consolidate(candidates)
	sortCandidates(candidates)

	now := time.Now()
	blocks := make([]*entities.BillableBlock, 0, len(candidates))
	for _, cand := range candidates {
		block := &entities.BillableBlock{
			ID:          uuid.New().String(),
			VisitID:     visitID,
			Code:        cand.rule.Code,
			Category:    cand.rule.Category,
			Description: cand.rule.Description,
			StartMs:     cand.startMs,
			EndMs:       cand.endMs,
			Minutes:     cand.minutes,
			Evidence:    cand.evidence,
			CreatedAt:   now,
		}

		// Short blocks stay billable but are surfaced for reviewer attention.
		if block.Minutes < s.minBlockMinutes {
			block.IsFlagged = true
			block.FlagReason = "below minimum billable duration"
		}

		blocks = append(blocks, block)
	}

	return blocks
}

// detectCandidates runs the rule table over the segments. A segment may
// contribute to several categories; contiguous matches of one category
// coalesce into a single candidate. Segments matching no rule coalesce into
// companionship coverage.
func (s *BillingService) detectCandidates(segments []*entities.TranscriptSegment) []candidateBlock {
	var candidates []candidateBlock

	for ruleIdx, rule := range s.rules {
		var open *candidateBlock
		for _, seg := range segments {
			if rule.Matches(seg.Text) {
				if open == nil {
					open = &candidateBlock{rule: rule, ruleIdx: ruleIdx, startMs: seg.StartMs, endMs: seg.EndMs}
				}
				open.endMs = seg.EndMs
				open.evidence = append(open.evidence, evidenceFrom(seg))
			} else if open != nil {
				candidates = append(candidates, finish(*open))
				open = nil
			}
		}
		if open != nil {
			candidates = append(candidates, finish(*open))
		}
	}

	// Unmatched segments default to companionship coverage for their span.
	companionIdx := len(s.rules)
	var open *candidateBlock
	for _, seg := range segments {
		if s.matchesAny(seg.Text) {
			if open != nil {
				candidates = append(candidates, finish(*open))
				open = nil
			}
			continue
		}
		if open == nil {
			open = &candidateBlock{rule: companionshipRule, ruleIdx: companionIdx, startMs: seg.StartMs, endMs: seg.EndMs}
		}
		open.endMs = seg.EndMs
		open.evidence = append(open.evidence, evidenceFrom(seg))
	}
	if open != nil {
		candidates = append(candidates, finish(*open))
	}

	return candidates
}

func (s *BillingService) matchesAny(text string) bool {
	for i := range s.rules {
		if s.rules[i].Matches(text) {
			return true
		}
	}
	return false
}

// coverGaps returns companionship blocks for every span of the visit timeline
// not covered by any candidate, so billed minutes reconcile to the visit
// duration. Gap blocks carry evidence from overlapping segments when any
// exist, else they are empty-evidence default coverage.
func (s *BillingService) coverGaps(candidates []candidateBlock, segments []*entities.TranscriptSegment, visitStartMs, visitEndMs int64) []candidateBlock {
	if visitEndMs <= visitStartMs {
		return nil
	}

	covered := mergeIntervals(candidates)
	companionIdx := len(s.rules)

	var gaps []candidateBlock
	cursor := visitStartMs
	for _, interval := range covered {
		if interval[0] > cursor {
			gaps = append(gaps, s.gapBlock(cursor, interval[0], companionIdx, segments))
		}
		if interval[1] > cursor {
			cursor = interval[1]
		}
	}
	if cursor < visitEndMs {
		gaps = append(gaps, s.gapBlock(cursor, visitEndMs, companionIdx, segments))
	}

	return gaps
}

func (s *BillingService) gapBlock(startMs, endMs int64, ruleIdx int, segments []*entities.TranscriptSegment) candidateBlock {
	gap := candidateBlock{rule: companionshipRule, ruleIdx: ruleIdx, startMs: startMs, endMs: endMs}
	for _, seg := range segments {
		if overlapMs(startMs, endMs, seg.StartMs, seg.EndMs) > 0 {
			gap.evidence = append(gap.evidence, evidenceFrom(seg))
		}
	}
	return finish(gap)
}

// consolidate merges same-category blocks separated by less than minGapMs.
// Minutes are summed and evidence concatenated, so pairwise merging in any
// order yields the same final block. Categories are merged independently;
// blocks of differing categories are never merged regardless of adjacency.
func (s *BillingService) consolidate(candidates []candidateBlock) []candidateBlock {
	byCategory := make(map[entities.BillingCategory][]candidateBlock)
	var order []entities.BillingCategory
	for _, cand := range candidates {
		if _, seen := byCategory[cand.rule.Category]; !seen {
			order = append(order, cand.rule.Category)
		}
		byCategory[cand.rule.Category] = append(byCategory[cand.rule.Category], cand)
	}

	var merged []candidateBlock
	for _, category := range order {
		group := byCategory[category]
		for _, cand := range group {
			if len(merged) > 0 {
				last := &merged[len(merged)-1]
				if last.rule.Category == category && cand.startMs-last.endMs < s.minGapMs {
					last.minutes += cand.minutes
					last.evidence = append(last.evidence, cand.evidence...)
					if cand.startMs < last.startMs {
						last.startMs = cand.startMs
					}
					if cand.endMs > last.endMs {
						last.endMs = cand.endMs
					}
					continue
				}
			}
			merged = append(merged, cand)
		}
	}

	return merged
}

// TotalMinutes sums the billed minutes of a block set, respecting reviewer
// adjustments.
func TotalMinutes(blocks []*entities.BillableBlock) int {
	total := 0
	for _, block := range blocks {
		total += block.BilledMinutes()
	}
	return total
}

func finish(cand candidateBlock) candidateBlock {
	cand.minutes = roundMinutes(cand.endMs - cand.startMs)
	return cand
}

func roundMinutes(durationMs int64) int {
	return int(math.Round(float64(durationMs) / 60000.0))
}

func evidenceFrom(seg *entities.TranscriptSegment) entities.BlockEvidence {
	return entities.BlockEvidence{
		SegmentID: seg.ID,
		StartMs:   seg.StartMs,
		EndMs:     seg.EndMs,
		Text:      seg.Text,
	}
}

// sortCandidates orders blocks by start, then rule-table position, then end.
// The explicit ordering keeps block generation order-stable across runs.
func sortCandidates(candidates []candidateBlock) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].startMs != candidates[j].startMs {
			return candidates[i].startMs < candidates[j].startMs
		}
		if candidates[i].ruleIdx != candidates[j].ruleIdx {
			return candidates[i].ruleIdx < candidates[j].ruleIdx
		}
		return candidates[i].endMs < candidates[j].endMs
	})
}

// mergeIntervals returns the sorted union of candidate spans
func mergeIntervals(candidates []candidateBlock) [][2]int64 {
	if len(candidates) == 0 {
		return nil
	}

	intervals := make([][2]int64, 0, len(candidates))
	for _, cand := range candidates {
		intervals = append(intervals, [2]int64{cand.startMs, cand.endMs})
	}
	sort.Slice(intervals, func(i, j int) bool {
		if intervals[i][0] != intervals[j][0] {
			return intervals[i][0] < intervals[j][0]
		}
		return intervals[i][1] < intervals[j][1]
	})

	merged := [][2]int64{intervals[0]}
	for _, interval := range intervals[1:] {
		last := &merged[len(merged)-1]
		if interval[0] <= last[1] {
			if interval[1] > last[1] {
				last[1] = interval[1]
			}
			continue
		}
		merged = append(merged, interval)
	}

	return merged
}
