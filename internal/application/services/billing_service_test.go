package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caretrail/visit-pipeline/internal/domain/entities"
)

func newTestBillingService(minBlockMinutes int, minGapMs int64) *BillingService {
	return NewBillingService(DefaultRuleTable(), minBlockMinutes, minGapMs)
}

func TestBuildBlocks(t *testing.T) {
	t.Run("categorized blocks reconcile to visit duration", func(t *testing.T) {
		svc := newTestBillingService(1, 120000)
		segments := []*entities.TranscriptSegment{
			seg("s1", 0, 300000, "Time to take your medication"),
			seg("s2", 300000, 600000, "Let me make you some breakfast"),
			seg("s3", 600000, 900000, "How are you feeling today"),
		}

		blocks := svc.BuildBlocks("v1", segments, 0, 900000)

		require.GreaterOrEqual(t, len(blocks), 2)
		assert.Equal(t, 15, TotalMinutes(blocks))

		categories := make(map[entities.BillingCategory]bool)
		for _, block := range blocks {
			categories[block.Category] = true
		}
		assert.True(t, categories[entities.CategoryMedReminder])
		assert.True(t, categories[entities.CategoryMealPrep])
		assert.True(t, categories[entities.CategoryCompanionship])
	})

	t.Run("blocks carry segment evidence", func(t *testing.T) {
		svc := newTestBillingService(1, 120000)
		segments := []*entities.TranscriptSegment{
			seg("s1", 0, 300000, "Here are your pills"),
		}

		blocks := svc.BuildBlocks("v1", segments, 0, 300000)

		require.Len(t, blocks, 1)
		require.Len(t, blocks[0].Evidence, 1)
		assert.Equal(t, "s1", blocks[0].Evidence[0].SegmentID)
		assert.Equal(t, "Here are your pills", blocks[0].Evidence[0].Text)
	})

	t.Run("silent stretch becomes empty-evidence companionship", func(t *testing.T) {
		svc := newTestBillingService(1, 60000)
		segments := []*entities.TranscriptSegment{
			seg("s1", 0, 300000, "Checking your blood pressure now"),
		}

		blocks := svc.BuildBlocks("v1", segments, 0, 900000)

		require.Len(t, blocks, 2)
		assert.Equal(t, entities.CategoryVitals, blocks[0].Category)
		assert.Equal(t, entities.CategoryCompanionship, blocks[1].Category)
		assert.Equal(t, int64(300000), blocks[1].StartMs)
		assert.Equal(t, int64(900000), blocks[1].EndMs)
		assert.Empty(t, blocks[1].Evidence)
		assert.Equal(t, 15, TotalMinutes(blocks))
	})

	t.Run("short block is flagged but kept", func(t *testing.T) {
		svc := newTestBillingService(5, 1)
		segments := []*entities.TranscriptSegment{
			seg("s1", 0, 60000, "Let me check your blood pressure"),
			seg("s2", 60000, 600000, "Shall we look at the photo album"),
		}

		blocks := svc.BuildBlocks("v1", segments, 0, 600000)

		require.Len(t, blocks, 2)
		flagged := blocks[0]
		assert.Equal(t, entities.CategoryVitals, flagged.Category)
		assert.Equal(t, 1, flagged.Minutes)
		assert.True(t, flagged.IsFlagged)
		assert.NotEmpty(t, flagged.FlagReason)
		assert.Equal(t, 10, TotalMinutes(blocks))
	})

	t.Run("same-category blocks within gap threshold merge", func(t *testing.T) {
		svc := newTestBillingService(1, 120000)
		segments := []*entities.TranscriptSegment{
			seg("s1", 0, 120000, "Your medication is ready"),
			seg("s2", 120000, 180000, "I'll warm up your lunch"),
			seg("s3", 180000, 300000, "Don't forget the evening pills"),
		}

		blocks := svc.BuildBlocks("v1", segments, 0, 300000)

		var medBlocks []*entities.BillableBlock
		for _, block := range blocks {
			if block.Category == entities.CategoryMedReminder {
				medBlocks = append(medBlocks, block)
			}
		}
		require.Len(t, medBlocks, 1)
		merged := medBlocks[0]
		assert.Equal(t, int64(0), merged.StartMs)
		assert.Equal(t, int64(300000), merged.EndMs)
		assert.Equal(t, 4, merged.Minutes)
		assert.Len(t, merged.Evidence, 2)
	})

	t.Run("different categories never merge", func(t *testing.T) {
		svc := newTestBillingService(1, 600000)
		segments := []*entities.TranscriptSegment{
			seg("s1", 0, 120000, "Time for your medication"),
			seg("s2", 120000, 240000, "I'll start cooking dinner"),
		}

		blocks := svc.BuildBlocks("v1", segments, 0, 240000)

		require.Len(t, blocks, 2)
		assert.Equal(t, entities.CategoryMedReminder, blocks[0].Category)
		assert.Equal(t, entities.CategoryMealPrep, blocks[1].Category)
	})

	t.Run("same-category blocks beyond gap threshold stay separate", func(t *testing.T) {
		svc := newTestBillingService(1, 60000)
		segments := []*entities.TranscriptSegment{
			seg("s1", 0, 120000, "Morning pills first"),
			seg("s2", 120000, 300000, "Let's sit in the garden"),
			seg("s3", 300000, 420000, "Now the afternoon dose"),
		}

		blocks := svc.BuildBlocks("v1", segments, 0, 420000)

		var medBlocks []*entities.BillableBlock
		for _, block := range blocks {
			if block.Category == entities.CategoryMedReminder {
				medBlocks = append(medBlocks, block)
			}
		}
		require.Len(t, medBlocks, 2)
	})

	t.Run("output is deterministic", func(t *testing.T) {
		svc := newTestBillingService(5, 120000)
		segments := []*entities.TranscriptSegment{
			seg("s1", 0, 180000, "Let me take your temperature"),
			seg("s2", 180000, 420000, "Time for a shower and fresh clothes"),
			seg("s3", 420000, 600000, "What would you like for dinner"),
			seg("s4", 600000, 900000, "Tell me about your grandchildren"),
		}

		first := svc.BuildBlocks("v1", segments, 0, 900000)
		second := svc.BuildBlocks("v1", segments, 0, 900000)

		require.Equal(t, len(first), len(second))
		for i := range first {
			assert.Equal(t, first[i].Category, second[i].Category)
			assert.Equal(t, first[i].Code, second[i].Code)
			assert.Equal(t, first[i].StartMs, second[i].StartMs)
			assert.Equal(t, first[i].EndMs, second[i].EndMs)
			assert.Equal(t, first[i].Minutes, second[i].Minutes)
			assert.Equal(t, first[i].Evidence, second[i].Evidence)
		}
	})

	t.Run("no segments yields full-visit companionship coverage", func(t *testing.T) {
		svc := newTestBillingService(5, 120000)

		blocks := svc.BuildBlocks("v1", nil, 0, 600000)

		require.Len(t, blocks, 1)
		assert.Equal(t, entities.CategoryCompanionship, blocks[0].Category)
		assert.Equal(t, 10, blocks[0].Minutes)
		assert.Empty(t, blocks[0].Evidence)
	})
}

func TestBilledMinutesRespectsAdjustment(t *testing.T) {
	adjusted := 7
	block := &entities.BillableBlock{Minutes: 10, AdjustedMinutes: &adjusted}

	assert.Equal(t, 7, block.BilledMinutes())
	assert.Equal(t, 7, TotalMinutes([]*entities.BillableBlock{block}))
}

// Folding same-category blocks together in any pairwise order produces the
// same minutes, span, and evidence set.
func TestConsolidateAssociativity(t *testing.T) {
	svc := newTestBillingService(1, 120000)
	med := DefaultRuleTable()[0]
	a := candidateBlock{rule: med, startMs: 0, endMs: 120000, minutes: 2,
		evidence: []entities.BlockEvidence{{SegmentID: "s1"}}}
	b := candidateBlock{rule: med, startMs: 180000, endMs: 300000, minutes: 2,
		evidence: []entities.BlockEvidence{{SegmentID: "s2"}}}
	c := candidateBlock{rule: med, startMs: 360000, endMs: 480000, minutes: 2,
		evidence: []entities.BlockEvidence{{SegmentID: "s3"}}}

	allAtOnce := svc.consolidate([]candidateBlock{a, b, c})
	leftFirst := svc.consolidate(append(svc.consolidate([]candidateBlock{a, b}), c))
	rightFirst := svc.consolidate(append([]candidateBlock{a}, svc.consolidate([]candidateBlock{b, c})...))

	for _, result := range [][]candidateBlock{allAtOnce, leftFirst, rightFirst} {
		require.Len(t, result, 1)
		merged := result[0]
		assert.Equal(t, int64(0), merged.startMs)
		assert.Equal(t, int64(480000), merged.endMs)
		assert.Equal(t, 6, merged.minutes)

		segIDs := make([]string, 0, len(merged.evidence))
		for _, ev := range merged.evidence {
			segIDs = append(segIDs, ev.SegmentID)
		}
		assert.ElementsMatch(t, []string{"s1", "s2", "s3"}, segIDs)
	}
}

// A merged block bills the sum of its constituents, never the gross span, so
// spans absorbed by a merge are not billed twice.
func TestMergedBlocksSumConstituentMinutes(t *testing.T) {
	svc := newTestBillingService(1, 120000)
	segments := []*entities.TranscriptSegment{
		seg("s1", 0, 120000, "Time for your morning medication"),
		seg("s2", 120000, 180000, "The garden looks lovely today"),
		seg("s3", 180000, 300000, "Now the midday pills"),
		seg("s4", 300000, 360000, "Shall we look at the photo album"),
		seg("s5", 360000, 480000, "Last medication round before I leave"),
	}

	blocks := svc.BuildBlocks("v1", segments, 0, 480000)

	require.Len(t, blocks, 3)
	merged := blocks[0]
	assert.Equal(t, entities.CategoryMedReminder, merged.Category)
	assert.Equal(t, int64(0), merged.StartMs)
	assert.Equal(t, int64(480000), merged.EndMs)
	assert.Equal(t, 6, merged.Minutes)
	assert.Len(t, merged.Evidence, 3)

	assert.Equal(t, entities.CategoryCompanionship, blocks[1].Category)
	assert.Equal(t, entities.CategoryCompanionship, blocks[2].Category)
	assert.Equal(t, 8, TotalMinutes(blocks))
}
