package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/caretrail/visit-pipeline/internal/domain/entities"
	"github.com/caretrail/visit-pipeline/internal/domain/providers"
	"github.com/caretrail/visit-pipeline/internal/domain/repositories"
	"github.com/caretrail/visit-pipeline/internal/infrastructure/observability"
	apperrors "github.com/caretrail/visit-pipeline/pkg/errors"
)

// PipelineService orchestrates the per-visit processing pipeline. Each stage
// runs as an isolated task pulled off the queue; this service executes one
// stage, records its outcome on the visit's pipeline state, and enqueues the
// next stage on success.
type PipelineService struct {
	visitRepo      repositories.VisitRepository
	transcriptRepo repositories.TranscriptRepository
	billingRepo    repositories.BillingRepository
	noteRepo       repositories.NoteRepository
	contractRepo   repositories.ContractRepository
	queue          providers.TaskQueue
	audioStore     providers.AudioStore
	transcription  providers.TranscriptionProvider
	diarization    providers.DiarizationProvider
	noteSearch     providers.NoteSearchRepository
	alignment      *AlignmentService
	billing        *BillingService
	notes          *NoteService
	contracts      *ContractService
	minSpeakers    int
	maxSpeakers    int
	metrics        *observability.Metrics
}

// NewPipelineService creates a pipeline orchestrator. noteSearch may be nil;
// note indexing is then skipped.
func NewPipelineService(
	visitRepo repositories.VisitRepository,
	transcriptRepo repositories.TranscriptRepository,
	billingRepo repositories.BillingRepository,
	noteRepo repositories.NoteRepository,
	contractRepo repositories.ContractRepository,
	queue providers.TaskQueue,
	audioStore providers.AudioStore,
	transcription providers.TranscriptionProvider,
	diarization providers.DiarizationProvider,
	noteSearch providers.NoteSearchRepository,
	alignment *AlignmentService,
	billing *BillingService,
	notes *NoteService,
	contracts *ContractService,
	minSpeakers, maxSpeakers int,
	metrics *observability.Metrics,
) *PipelineService {
	return &PipelineService{
		visitRepo:      visitRepo,
		transcriptRepo: transcriptRepo,
		billingRepo:    billingRepo,
		noteRepo:       noteRepo,
		contractRepo:   contractRepo,
		queue:          queue,
		audioStore:     audioStore,
		transcription:  transcription,
		diarization:    diarization,
		noteSearch:     noteSearch,
		alignment:      alignment,
		billing:        billing,
		notes:          notes,
		contracts:      contracts,
		minSpeakers:    minSpeakers,
		maxSpeakers:    maxSpeakers,
		metrics:        metrics,
	}
}

// StartPipeline attaches the recorded audio to the visit, resets its pipeline
// state, and enqueues the first stage.
func (s *PipelineService) StartPipeline(ctx context.Context, visitID, audioAssetKey string) (*entities.Visit, error) {
	ctx, span := observability.StartSpan(ctx, "PipelineService.StartPipeline")
	defer span.End()

	visit, err := s.visitRepo.GetByID(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if audioAssetKey == "" {
		return nil, apperrors.NewValidationError("audio asset key is required")
	}

	visit.AudioAssetKey = audioAssetKey
	visit.Status = entities.VisitStatusInProgress
	visit.PipelineState = entities.NewPipelineState()
	if err := s.visitRepo.Update(ctx, visit); err != nil {
		return nil, err
	}

	if err := s.enqueueStage(ctx, visitID, entities.StageOrder[0]); err != nil {
		return nil, err
	}

	observability.LoggerFromContext(ctx).Info().
		Str("visit_id", visitID).
		Str("audio_asset_key", audioAssetKey).
		Msg("Pipeline started")

	return visit, nil
}

// RetriggerStage re-enqueues a single stage for a visit, marking it queued.
// Downstream stages will re-run in order as the pipeline advances.
func (s *PipelineService) RetriggerStage(ctx context.Context, visitID string, stage entities.Stage) error {
	if !validStage(stage) {
		return apperrors.NewValidationError(fmt.Sprintf("unknown stage: %s", stage))
	}
	if _, err := s.visitRepo.GetByID(ctx, visitID); err != nil {
		return err
	}
	return s.enqueueStage(ctx, visitID, stage)
}

// ExecuteStage runs one stage for one visit: marks it processing, invokes the
// stage implementation, records completion or failure on the pipeline state,
// and on success enqueues the next stage. The returned error is the stage's
// failure, already recorded; callers decide on requeueing.
func (s *PipelineService) ExecuteStage(ctx context.Context, visitID string, stage entities.Stage) error {
	ctx, span := observability.StartSpan(ctx, "PipelineService.ExecuteStage")
	defer span.End()

	logger := observability.StageLogger(ctx, visitID, string(stage))
	start := time.Now()

	started := start.UTC()
	if err := s.visitRepo.UpdatePipelineStage(ctx, visitID, stage, entities.StageRecord{
		Status:    entities.StageStatusProcessing,
		StartedAt: &started,
	}); err != nil {
		return err
	}

	counters, runErr := s.runStage(ctx, visitID, stage)
	finished := time.Now().UTC()
	observability.RecordStageMetric(ctx, s.metrics, string(stage), runErr != nil, time.Since(start))

	if runErr != nil {
		observability.RecordError(span, runErr)
		logger.Error().Err(runErr).Msg("Stage failed")

		if err := s.visitRepo.UpdatePipelineStage(ctx, visitID, stage, entities.StageRecord{
			Status:     entities.StageStatusFailed,
			StartedAt:  &started,
			FinishedAt: &finished,
			Error:      runErr.Error(),
		}); err != nil {
			logger.Error().Err(err).Msg("Failed to record stage failure")
		}
		return runErr
	}

	if err := s.visitRepo.UpdatePipelineStage(ctx, visitID, stage, entities.StageRecord{
		Status:     entities.StageStatusCompleted,
		StartedAt:  &started,
		FinishedAt: &finished,
		Counters:   counters,
	}); err != nil {
		return err
	}

	logger.Info().
		Dur("duration", time.Since(start)).
		Msg("Stage completed")

	next := entities.NextStage(stage)
	if next == "" {
		return s.visitRepo.UpdateStatus(ctx, visitID, entities.VisitStatusPendingReview)
	}
	return s.enqueueStage(ctx, visitID, next)
}

func (s *PipelineService) runStage(ctx context.Context, visitID string, stage entities.Stage) (map[string]int, error) {
	switch stage {
	case entities.StageTranscription:
		return s.runTranscription(ctx, visitID)
	case entities.StageDiarization:
		return s.runDiarization(ctx, visitID)
	case entities.StageAlignment:
		return s.runAlignment(ctx, visitID)
	case entities.StageBilling:
		return s.runBilling(ctx, visitID)
	case entities.StageNote:
		return s.runNote(ctx, visitID)
	case entities.StageContract:
		return s.runContract(ctx, visitID)
	default:
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown stage: %s", stage))
	}
}

func (s *PipelineService) runTranscription(ctx context.Context, visitID string) (map[string]int, error) {
	visit, err := s.visitRepo.GetByID(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if visit.AudioAssetKey == "" {
		return nil, apperrors.NewMissingInputError("visit has no audio asset")
	}

	audio, err := s.audioStore.Fetch(ctx, visit.AudioAssetKey)
	if err != nil {
		return nil, err
	}

	result, err := s.transcription.Transcribe(ctx, audio)
	if err != nil {
		return nil, err
	}
	if len(result.Segments) == 0 {
		return nil, apperrors.NewMissingInputError("transcription produced no segments")
	}

	now := time.Now()
	segments := make([]*entities.TranscriptSegment, 0, len(result.Segments))
	for _, raw := range result.Segments {
		segments = append(segments, &entities.TranscriptSegment{
			ID:         uuid.New().String(),
			VisitID:    visitID,
			StartMs:    raw.StartMs,
			EndMs:      raw.EndMs,
			Text:       raw.Text,
			Confidence: raw.Confidence,
			Source:     result.Engine,
			CreatedAt:  now,
		})
	}

	if err := s.transcriptRepo.ReplaceSegments(ctx, visitID, segments); err != nil {
		return nil, err
	}
	return map[string]int{"segments": len(segments)}, nil
}

func (s *PipelineService) runDiarization(ctx context.Context, visitID string) (map[string]int, error) {
	visit, err := s.visitRepo.GetByID(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if visit.AudioAssetKey == "" {
		return nil, apperrors.NewMissingInputError("visit has no audio asset")
	}

	audio, err := s.audioStore.Fetch(ctx, visit.AudioAssetKey)
	if err != nil {
		return nil, err
	}

	result, err := s.diarization.Diarize(ctx, audio, s.minSpeakers, s.maxSpeakers)
	if err != nil {
		return nil, err
	}
	if result.Degraded {
		observability.StageLogger(ctx, visitID, string(entities.StageDiarization)).Warn().
			Str("engine", result.Engine).
			Msg("Diarization degraded to fallback output")
	}

	now := time.Now()
	turns := make([]*entities.DiarizationTurn, 0, len(result.Turns))
	for _, raw := range result.Turns {
		turns = append(turns, &entities.DiarizationTurn{
			ID:         uuid.New().String(),
			VisitID:    visitID,
			Speaker:    raw.Speaker,
			StartMs:    raw.StartMs,
			EndMs:      raw.EndMs,
			Confidence: raw.Confidence,
			CreatedAt:  now,
		})
	}

	if err := s.transcriptRepo.ReplaceTurns(ctx, visitID, turns); err != nil {
		return nil, err
	}
	return map[string]int{"turns": len(turns)}, nil
}

func (s *PipelineService) runAlignment(ctx context.Context, visitID string) (map[string]int, error) {
	segments, err := s.transcriptRepo.ListSegments(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, apperrors.NewMissingInputError("alignment requires transcript segments")
	}

	turns, err := s.transcriptRepo.ListTurns(ctx, visitID)
	if err != nil {
		return nil, err
	}

	labels := s.alignment.Align(segments, turns)
	if err := s.transcriptRepo.UpdateSpeakerLabels(ctx, visitID, labels); err != nil {
		return nil, err
	}

	for _, seg := range segments {
		if label, ok := labels[seg.ID]; ok {
			seg.SpeakerLabel = label
		}
	}
	if caregiver := s.alignment.InferCaregiver(segments); caregiver != "" {
		observability.StageLogger(ctx, visitID, string(entities.StageAlignment)).Info().
			Str("speaker", caregiver).
			Msg("Inferred caregiver speaker")
	}

	unknown := 0
	for _, label := range labels {
		if label == UnknownSpeaker {
			unknown++
		}
	}
	return map[string]int{"labeled": len(labels) - unknown, "unknown": unknown}, nil
}

func (s *PipelineService) runBilling(ctx context.Context, visitID string) (map[string]int, error) {
	visit, err := s.visitRepo.GetByID(ctx, visitID)
	if err != nil {
		return nil, err
	}

	segments, err := s.transcriptRepo.ListSegments(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, apperrors.NewMissingInputError("billing requires transcript segments")
	}

	blocks := s.billing.BuildBlocks(visitID, segments, 0, visit.DurationMs())
	if err := s.billingRepo.ReplaceBlocks(ctx, visitID, blocks); err != nil {
		return nil, err
	}
	observability.RecordBlocksEmitted(ctx, s.metrics, len(blocks))

	flagged := 0
	for _, block := range blocks {
		if block.IsFlagged {
			flagged++
		}
	}
	return map[string]int{"blocks": len(blocks), "flagged": flagged, "minutes": TotalMinutes(blocks)}, nil
}

func (s *PipelineService) runNote(ctx context.Context, visitID string) (map[string]int, error) {
	visit, err := s.visitRepo.GetByID(ctx, visitID)
	if err != nil {
		return nil, err
	}

	segments, err := s.transcriptRepo.ListSegments(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, apperrors.NewMissingInputError("note composition requires transcript segments")
	}

	blocks, err := s.billingRepo.ListBlocks(ctx, visitID)
	if err != nil {
		return nil, err
	}

	note := s.notes.Compose(visit, segments, blocks)
	if err := s.noteRepo.Upsert(ctx, note); err != nil {
		return nil, err
	}

	if s.noteSearch != nil {
		if err := s.noteSearch.IndexNote(ctx, note); err != nil {
			// Search indexing is best-effort; the note itself is persisted.
			observability.StageLogger(ctx, visitID, string(entities.StageNote)).Warn().Err(err).
				Msg("Note indexing failed")
		}
	}

	return map[string]int{"tasks": len(note.StructuredData.TasksPerformed)}, nil
}

func (s *PipelineService) runContract(ctx context.Context, visitID string) (map[string]int, error) {
	visit, err := s.visitRepo.GetByID(ctx, visitID)
	if err != nil {
		return nil, err
	}

	note, err := s.noteRepo.GetByVisitID(ctx, visitID)
	if err != nil {
		return nil, err
	}

	blocks, err := s.billingRepo.ListBlocks(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		return nil, apperrors.NewMissingInputError("contract requires billable blocks")
	}

	contract := s.contracts.Assemble(visit, note, blocks)
	if err := s.contractRepo.Upsert(ctx, contract); err != nil {
		return nil, err
	}
	return map[string]int{"total_minutes": contract.TotalMinutes}, nil
}

func (s *PipelineService) enqueueStage(ctx context.Context, visitID string, stage entities.Stage) error {
	if err := s.visitRepo.UpdatePipelineStage(ctx, visitID, stage, entities.StageRecord{
		Status: entities.StageStatusQueued,
	}); err != nil {
		return err
	}
	return s.queue.Enqueue(ctx, &providers.StageTask{
		ID:       uuid.New().String(),
		VisitID:  visitID,
		Stage:    stage,
		Attempt:  0,
		Enqueued: time.Now().UTC(),
	})
}

func validStage(stage entities.Stage) bool {
	for _, s := range entities.StageOrder {
		if s == stage {
			return true
		}
	}
	return false
}
