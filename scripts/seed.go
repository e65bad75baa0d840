package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/caretrail/visit-pipeline/internal/adapters/database"
	"github.com/caretrail/visit-pipeline/internal/application/services"
	"github.com/caretrail/visit-pipeline/internal/domain/entities"
	"github.com/caretrail/visit-pipeline/internal/infrastructure/clients/postgres"
	"github.com/caretrail/visit-pipeline/pkg/config"
)

// Seeds a demo visit with a fully processed pipeline so the review UI has
// something to show against a fresh database.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pgClient.Close()

	ctx := context.Background()

	if os.Getenv("RESET_DB") == "true" {
		log.Println("RESET_DB=true detected, truncating tables before seeding")
		_, err := pgClient.DB().ExecContext(ctx, `
			TRUNCATE TABLE
				contract_documents,
				visit_notes,
				billable_blocks,
				diarization_turns,
				transcript_segments,
				visits
			RESTART IDENTITY CASCADE
		`)
		if err != nil {
			log.Fatalf("Failed to reset tables: %v", err)
		}
	}

	visitRepo := database.NewVisitAdapter(pgClient)
	transcriptRepo := database.NewTranscriptAdapter(pgClient)
	billingRepo := database.NewBillingAdapter(pgClient)
	noteRepo := database.NewNoteAdapter(pgClient)

	start := time.Now().Add(-2 * time.Hour).Truncate(time.Minute)
	end := start.Add(45 * time.Minute)

	visit := &entities.Visit{
		ID:             uuid.New().String(),
		ClientID:       "demo-client",
		CaregiverID:    "demo-caregiver",
		ScheduledStart: start,
		ScheduledEnd:   end,
		AudioAssetKey:  "demo/visit.wav",
		Status:         entities.VisitStatusPendingReview,
		PipelineState:  entities.NewPipelineState(),
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	if err := visitRepo.Create(ctx, visit); err != nil {
		log.Fatalf("Failed to create demo visit: %v", err)
	}

	confidence := 0.93
	lines := []struct {
		startMs, endMs int64
		text, speaker  string
	}{
		{0, 300000, "Good morning, let me get your medication sorted first.", "Speaker A"},
		{300000, 600000, "Thank you, I already feel better when you're here.", "Speaker B"},
		{600000, 1200000, "Time for breakfast, I'll make some eggs.", "Speaker A"},
		{1200000, 1500000, "I slept well but my knee still hurts a bit.", "Speaker B"},
		{1500000, 2100000, "Let's check your blood pressure before I go.", "Speaker A"},
		{2100000, 2700000, "Tell me about your week while it measures.", "Speaker A"},
	}

	segments := make([]*entities.TranscriptSegment, 0, len(lines))
	for _, line := range lines {
		segments = append(segments, &entities.TranscriptSegment{
			ID:           uuid.New().String(),
			VisitID:      visit.ID,
			StartMs:      line.startMs,
			EndMs:        line.endMs,
			Text:         line.text,
			SpeakerLabel: line.speaker,
			Confidence:   &confidence,
			Source:       "seed",
			CreatedAt:    time.Now(),
		})
	}
	if err := transcriptRepo.ReplaceSegments(ctx, visit.ID, segments); err != nil {
		log.Fatalf("Failed to seed segments: %v", err)
	}

	billingService := services.NewBillingService(services.DefaultRuleTable(), cfg.Pipeline.MinBlockMinutes, cfg.Pipeline.MinGapMs)
	blocks := billingService.BuildBlocks(visit.ID, segments, 0, visit.DurationMs())
	if err := billingRepo.ReplaceBlocks(ctx, visit.ID, blocks); err != nil {
		log.Fatalf("Failed to seed billable blocks: %v", err)
	}

	note := services.NewNoteService().Compose(visit, segments, blocks)
	if err := noteRepo.Upsert(ctx, note); err != nil {
		log.Fatalf("Failed to seed visit note: %v", err)
	}

	log.Printf("Seeded visit %s with %d segments, %d blocks", visit.ID, len(segments), len(blocks))
}
