package services

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/caretrail/visit-pipeline/internal/domain/entities"
)

// NoteService composes the structured visit note and its narrative from the
// transcript and the billable block set. Composition is deterministic: the
// same inputs always produce the same note text.
type NoteService struct{}

func NewNoteService() *NoteService {
	return &NoteService{}
}

// categoryTaskLabels maps billing categories to the task phrasing used in
// notes. Kept separate from the billing descriptions so note wording can
// evolve without touching billing codes.
var categoryTaskLabels = map[entities.BillingCategory]string{
	entities.CategoryMedReminder:   "Medication reminders",
	entities.CategoryMealPrep:      "Meal preparation",
	entities.CategoryADLHygiene:    "Personal care assistance",
	entities.CategoryVitals:        "Vitals monitoring",
	entities.CategoryCompanionship: "Companionship and supervision",
}

type observationRule struct {
	sentence string
	keywords []string
}

// observationRules capture client condition signals worth surfacing to the
// care team. Evaluated in order; every matching rule contributes once.
var observationRules = []observationRule{
	{
		sentence: "Client was in good spirits and engaged during the visit.",
		keywords: []string{"feeling good", "feel good", "great", "wonderful", "happy", "laughed", "smiling", "enjoyed"},
	},
	{
		sentence: "Client reported discomfort during the visit.",
		keywords: []string{"hurts", "hurt", "sore", "ache", "aching", "uncomfortable", "discomfort"},
	},
	{
		sentence: "Client's appetite was noted during mealtime.",
		keywords: []string{"hungry", "appetite", "ate well", "finished", "not hungry", "didn't eat"},
	},
	{
		sentence: "Client discussed sleep quality.",
		keywords: []string{"slept", "sleep", "tired", "rested", "awake all night", "nap"},
	},
}

const defaultObservation = "Client participated in scheduled care activities."

// concernKeywords trigger entries in the concerns section. These are safety
// signals and always surface verbatim context for the reviewer.
var concernKeywords = []struct {
	label    string
	keywords []string
}{
	{"Possible fall risk mentioned", []string{"fall", "fell", "falling", "slipped", "tripped"}},
	{"Dizziness reported", []string{"dizzy", "dizziness", "lightheaded", "light-headed"}},
	{"Confusion or memory concern", []string{"confused", "confusion", "forgot", "forget", "memory", "can't remember"}},
	{"Pain reported", []string{"pain", "painful"}},
	{"Urgent or emergency language", []string{"emergency", "911", "ambulance", "hospital"}},
}

const noConcerns = "None noted."

// Compose builds the visit note from the visit, its transcript segments, and
// its billable blocks.
func (s *NoteService) Compose(visit *entities.Visit, segments []*entities.TranscriptSegment, blocks []*entities.BillableBlock) *entities.VisitNote {
	tasks := s.composeTasks(blocks)
	observations := s.composeObservations(segments)
	concerns := s.composeConcerns(segments)

	concernsText := noConcerns
	if len(concerns) > 0 {
		concernsText = strings.Join(concerns, "; ")
	}

	structured := entities.StructuredNote{
		TasksPerformed: tasks,
		Observations:   observations,
		Concerns:       concernsText,
		Condition:      s.composeCondition(observations, concerns),
	}

	now := time.Now()
	return &entities.VisitNote{
		ID:             uuid.New().String(),
		VisitID:        visit.ID,
		StructuredData: structured,
		Narrative:      s.composeNarrative(visit, structured, blocks),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// composeTasks emits one task per billable block, in block start order.
// Reviewer-adjusted minutes win over computed minutes.
func (s *NoteService) composeTasks(blocks []*entities.BillableBlock) []entities.NoteTask {
	ordered := make([]*entities.BillableBlock, len(blocks))
	copy(ordered, blocks)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].StartMs < ordered[j].StartMs })

	var tasks []entities.NoteTask
	for _, block := range ordered {
		tasks = append(tasks, entities.NoteTask{
			Category:    block.Category,
			Description: categoryTaskLabels[block.Category],
			Minutes:     block.BilledMinutes(),
		})
	}
	return tasks
}

func (s *NoteService) composeObservations(segments []*entities.TranscriptSegment) []string {
	joined := strings.ToLower(joinTexts(segments))

	var observations []string
	for _, rule := range observationRules {
		for _, keyword := range rule.keywords {
			if strings.Contains(joined, keyword) {
				observations = append(observations, rule.sentence)
				break
			}
		}
	}
	if len(observations) == 0 {
		observations = []string{defaultObservation}
	}
	return observations
}

func (s *NoteService) composeConcerns(segments []*entities.TranscriptSegment) []string {
	var concerns []string
	for _, entry := range concernKeywords {
		context := firstMatch(segments, entry.keywords)
		if context == "" {
			continue
		}
		concerns = append(concerns, fmt.Sprintf("%s: %q", entry.label, context))
	}
	return concerns
}

func (s *NoteService) composeCondition(observations, concerns []string) string {
	if len(concerns) > 0 {
		return "Needs follow-up"
	}
	if observations[0] == defaultObservation {
		return "Stable"
	}
	return "Stable, engaged"
}

// composeNarrative renders the paragraph-form note. Paragraph order and
// phrasing are fixed so re-composition on unchanged inputs is byte-identical.
func (s *NoteService) composeNarrative(visit *entities.Visit, structured entities.StructuredNote, blocks []*entities.BillableBlock) string {
	var paragraphs []string

	total := TotalMinutes(blocks)
	paragraphs = append(paragraphs, fmt.Sprintf(
		"Home visit on %s. Total documented care time: %d minutes.",
		visit.ScheduledStart.Format("January 2, 2006"), total,
	))

	if len(structured.TasksPerformed) > 0 {
		parts := make([]string, 0, len(structured.TasksPerformed))
		for _, task := range structured.TasksPerformed {
			parts = append(parts, fmt.Sprintf("%s (%d min)", strings.ToLower(task.Description[:1])+task.Description[1:], task.Minutes))
		}
		paragraphs = append(paragraphs, "Services provided: "+strings.Join(parts, ", ")+".")
	}

	paragraphs = append(paragraphs, strings.Join(structured.Observations, " "))
	paragraphs = append(paragraphs, "Concerns: "+structured.Concerns)

	paragraphs = append(paragraphs, "Note generated from the recorded visit transcript and pending caregiver review.")

	return strings.Join(paragraphs, "\n\n")
}

func joinTexts(segments []*entities.TranscriptSegment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		parts = append(parts, seg.Text)
	}
	return strings.Join(parts, " ")
}

// firstMatch returns the text of the earliest segment containing any of the
// keywords, scanning segments in start order.
func firstMatch(segments []*entities.TranscriptSegment, keywords []string) string {
	ordered := make([]*entities.TranscriptSegment, len(segments))
	copy(ordered, segments)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].StartMs < ordered[j].StartMs })

	for _, seg := range ordered {
		lower := strings.ToLower(seg.Text)
		for _, keyword := range keywords {
			if strings.Contains(lower, keyword) {
				return seg.Text
			}
		}
	}
	return ""
}
