package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/caretrail/visit-pipeline/internal/domain/entities"
	"github.com/caretrail/visit-pipeline/internal/domain/providers"
	"github.com/caretrail/visit-pipeline/internal/domain/repositories"
	apperrors "github.com/caretrail/visit-pipeline/pkg/errors"
)

// Mocks

type MockVisitRepository struct {
	mock.Mock
}

func (m *MockVisitRepository) Create(ctx context.Context, visit *entities.Visit) error {
	args := m.Called(ctx, visit)
	return args.Error(0)
}

func (m *MockVisitRepository) GetByID(ctx context.Context, id string) (*entities.Visit, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Visit), args.Error(1)
}

func (m *MockVisitRepository) Update(ctx context.Context, visit *entities.Visit) error {
	args := m.Called(ctx, visit)
	return args.Error(0)
}

func (m *MockVisitRepository) UpdateStatus(ctx context.Context, id string, status entities.VisitStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockVisitRepository) UpdatePipelineStage(ctx context.Context, id string, stage entities.Stage, record entities.StageRecord) error {
	args := m.Called(ctx, id, stage, record)
	return args.Error(0)
}

func (m *MockVisitRepository) List(ctx context.Context, filter repositories.VisitFilter) ([]*entities.Visit, error) {
	return nil, nil
}

type MockTranscriptRepository struct {
	mock.Mock
}

func (m *MockTranscriptRepository) ReplaceSegments(ctx context.Context, visitID string, segments []*entities.TranscriptSegment) error {
	args := m.Called(ctx, visitID, segments)
	return args.Error(0)
}

func (m *MockTranscriptRepository) ListSegments(ctx context.Context, visitID string) ([]*entities.TranscriptSegment, error) {
	args := m.Called(ctx, visitID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.TranscriptSegment), args.Error(1)
}

func (m *MockTranscriptRepository) UpdateSpeakerLabels(ctx context.Context, visitID string, labels map[string]string) error {
	args := m.Called(ctx, visitID, labels)
	return args.Error(0)
}

func (m *MockTranscriptRepository) ReplaceTurns(ctx context.Context, visitID string, turns []*entities.DiarizationTurn) error {
	args := m.Called(ctx, visitID, turns)
	return args.Error(0)
}

func (m *MockTranscriptRepository) ListTurns(ctx context.Context, visitID string) ([]*entities.DiarizationTurn, error) {
	args := m.Called(ctx, visitID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.DiarizationTurn), args.Error(1)
}

type MockBillingRepository struct {
	mock.Mock
}

func (m *MockBillingRepository) ReplaceBlocks(ctx context.Context, visitID string, blocks []*entities.BillableBlock) error {
	args := m.Called(ctx, visitID, blocks)
	return args.Error(0)
}

func (m *MockBillingRepository) ListBlocks(ctx context.Context, visitID string) ([]*entities.BillableBlock, error) {
	args := m.Called(ctx, visitID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.BillableBlock), args.Error(1)
}

func (m *MockBillingRepository) GetBlock(ctx context.Context, id string) (*entities.BillableBlock, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.BillableBlock), args.Error(1)
}

func (m *MockBillingRepository) AdjustBlock(ctx context.Context, id string, minutes int, reason string) error {
	args := m.Called(ctx, id, minutes, reason)
	return args.Error(0)
}

type MockNoteRepository struct {
	mock.Mock
}

func (m *MockNoteRepository) Upsert(ctx context.Context, note *entities.VisitNote) error {
	args := m.Called(ctx, note)
	return args.Error(0)
}

func (m *MockNoteRepository) GetByVisitID(ctx context.Context, visitID string) (*entities.VisitNote, error) {
	args := m.Called(ctx, visitID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.VisitNote), args.Error(1)
}

func (m *MockNoteRepository) Approve(ctx context.Context, visitID string, approvedBy string) error {
	args := m.Called(ctx, visitID, approvedBy)
	return args.Error(0)
}

type MockContractRepository struct {
	mock.Mock
}

func (m *MockContractRepository) Upsert(ctx context.Context, contract *entities.ContractDocument) error {
	args := m.Called(ctx, contract)
	return args.Error(0)
}

func (m *MockContractRepository) GetByVisitID(ctx context.Context, visitID string) (*entities.ContractDocument, error) {
	return nil, nil
}

type MockTaskQueue struct {
	mock.Mock
}

func (m *MockTaskQueue) Enqueue(ctx context.Context, task *providers.StageTask) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *MockTaskQueue) Dequeue(ctx context.Context, timeout time.Duration) (*providers.StageTask, error) {
	args := m.Called(ctx, timeout)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*providers.StageTask), args.Error(1)
}

func (m *MockTaskQueue) Ack(ctx context.Context, task *providers.StageTask) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *MockTaskQueue) Requeue(ctx context.Context, task *providers.StageTask) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *MockTaskQueue) ReclaimStale(ctx context.Context, maxAge time.Duration) (int, error) {
	return 0, nil
}

func (m *MockTaskQueue) Close() error {
	return nil
}

type MockAudioStore struct {
	mock.Mock
}

func (m *MockAudioStore) Fetch(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type MockTranscriptionProvider struct {
	mock.Mock
}

func (m *MockTranscriptionProvider) Transcribe(ctx context.Context, audio []byte) (*providers.TranscriptionResult, error) {
	args := m.Called(ctx, audio)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*providers.TranscriptionResult), args.Error(1)
}

type MockDiarizationProvider struct {
	mock.Mock
}

func (m *MockDiarizationProvider) Diarize(ctx context.Context, audio []byte, minSpeakers, maxSpeakers int) (*providers.DiarizationResult, error) {
	args := m.Called(ctx, audio, minSpeakers, maxSpeakers)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*providers.DiarizationResult), args.Error(1)
}

// Fixtures

type pipelineMocks struct {
	visitRepo      *MockVisitRepository
	transcriptRepo *MockTranscriptRepository
	billingRepo    *MockBillingRepository
	noteRepo       *MockNoteRepository
	contractRepo   *MockContractRepository
	queue          *MockTaskQueue
	audioStore     *MockAudioStore
	transcription  *MockTranscriptionProvider
	diarization    *MockDiarizationProvider
}

func newPipelineService() (*PipelineService, *pipelineMocks) {
	m := &pipelineMocks{
		visitRepo:      new(MockVisitRepository),
		transcriptRepo: new(MockTranscriptRepository),
		billingRepo:    new(MockBillingRepository),
		noteRepo:       new(MockNoteRepository),
		contractRepo:   new(MockContractRepository),
		queue:          new(MockTaskQueue),
		audioStore:     new(MockAudioStore),
		transcription:  new(MockTranscriptionProvider),
		diarization:    new(MockDiarizationProvider),
	}
	svc := NewPipelineService(
		m.visitRepo, m.transcriptRepo, m.billingRepo, m.noteRepo, m.contractRepo,
		m.queue, m.audioStore, m.transcription, m.diarization, nil,
		NewAlignmentService(0.5, "Speaker A"),
		NewBillingService(DefaultRuleTable(), 5, 120000),
		NewNoteService(),
		NewContractService(""),
		1, 4, nil,
	)
	return svc, m
}

func pipelineVisit() *entities.Visit {
	visit := testVisit()
	visit.AudioAssetKey = "audio/v1.wav"
	visit.Status = entities.VisitStatusInProgress
	visit.PipelineState = entities.NewPipelineState()
	return visit
}

// Tests

func TestStartPipeline(t *testing.T) {
	t.Run("attaches audio and enqueues first stage", func(t *testing.T) {
		svc, m := newPipelineService()
		visit := testVisit()

		m.visitRepo.On("GetByID", mock.Anything, "v1").Return(visit, nil)
		m.visitRepo.On("Update", mock.Anything, mock.MatchedBy(func(v *entities.Visit) bool {
			return v.AudioAssetKey == "audio/v1.wav" && v.Status == entities.VisitStatusInProgress
		})).Return(nil)
		m.visitRepo.On("UpdatePipelineStage", mock.Anything, "v1", entities.StageTranscription, mock.Anything).Return(nil)
		m.queue.On("Enqueue", mock.Anything, mock.MatchedBy(func(task *providers.StageTask) bool {
			return task.VisitID == "v1" && task.Stage == entities.StageTranscription
		})).Return(nil)

		updated, err := svc.StartPipeline(context.Background(), "v1", "audio/v1.wav")

		require.NoError(t, err)
		assert.Equal(t, entities.VisitStatusInProgress, updated.Status)
		m.visitRepo.AssertExpectations(t)
		m.queue.AssertExpectations(t)
	})

	t.Run("rejects empty audio key", func(t *testing.T) {
		svc, m := newPipelineService()
		m.visitRepo.On("GetByID", mock.Anything, "v1").Return(testVisit(), nil)

		_, err := svc.StartPipeline(context.Background(), "v1", "")

		require.Error(t, err)
		assert.Equal(t, apperrors.ErrorTypeValidation, apperrors.TypeOf(err))
	})
}

func TestExecuteStage(t *testing.T) {
	t.Run("transcription persists segments and enqueues diarization", func(t *testing.T) {
		svc, m := newPipelineService()
		visit := pipelineVisit()
		confidence := 0.9

		m.visitRepo.On("GetByID", mock.Anything, "v1").Return(visit, nil)
		m.visitRepo.On("UpdatePipelineStage", mock.Anything, "v1", entities.StageTranscription, mock.MatchedBy(func(r entities.StageRecord) bool {
			return r.Status == entities.StageStatusProcessing
		})).Return(nil).Once()
		m.audioStore.On("Fetch", mock.Anything, "audio/v1.wav").Return([]byte("audio"), nil)
		m.transcription.On("Transcribe", mock.Anything, []byte("audio")).Return(&providers.TranscriptionResult{
			Engine: "whisper",
			Segments: []providers.RawSegment{
				{StartMs: 0, EndMs: 5000, Text: "Good morning", Confidence: &confidence},
			},
		}, nil)
		m.transcriptRepo.On("ReplaceSegments", mock.Anything, "v1", mock.MatchedBy(func(segs []*entities.TranscriptSegment) bool {
			return len(segs) == 1 && segs[0].Text == "Good morning" && segs[0].Source == "whisper"
		})).Return(nil)
		m.visitRepo.On("UpdatePipelineStage", mock.Anything, "v1", entities.StageTranscription, mock.MatchedBy(func(r entities.StageRecord) bool {
			return r.Status == entities.StageStatusCompleted && r.Counters["segments"] == 1
		})).Return(nil).Once()
		m.visitRepo.On("UpdatePipelineStage", mock.Anything, "v1", entities.StageDiarization, mock.MatchedBy(func(r entities.StageRecord) bool {
			return r.Status == entities.StageStatusQueued
		})).Return(nil).Once()
		m.queue.On("Enqueue", mock.Anything, mock.MatchedBy(func(task *providers.StageTask) bool {
			return task.Stage == entities.StageDiarization
		})).Return(nil)

		err := svc.ExecuteStage(context.Background(), "v1", entities.StageTranscription)

		require.NoError(t, err)
		m.visitRepo.AssertExpectations(t)
		m.transcriptRepo.AssertExpectations(t)
		m.queue.AssertExpectations(t)
	})

	t.Run("failure is recorded and propagated without advancing", func(t *testing.T) {
		svc, m := newPipelineService()
		visit := pipelineVisit()
		engineErr := errors.New("engine unavailable")

		m.visitRepo.On("GetByID", mock.Anything, "v1").Return(visit, nil)
		m.visitRepo.On("UpdatePipelineStage", mock.Anything, "v1", entities.StageTranscription, mock.MatchedBy(func(r entities.StageRecord) bool {
			return r.Status == entities.StageStatusProcessing
		})).Return(nil).Once()
		m.audioStore.On("Fetch", mock.Anything, "audio/v1.wav").Return([]byte("audio"), nil)
		m.transcription.On("Transcribe", mock.Anything, mock.Anything).Return(nil, engineErr)
		m.visitRepo.On("UpdatePipelineStage", mock.Anything, "v1", entities.StageTranscription, mock.MatchedBy(func(r entities.StageRecord) bool {
			return r.Status == entities.StageStatusFailed && r.Error == "engine unavailable"
		})).Return(nil).Once()

		err := svc.ExecuteStage(context.Background(), "v1", entities.StageTranscription)

		require.Error(t, err)
		assert.Equal(t, engineErr, err)
		m.visitRepo.AssertExpectations(t)
		m.queue.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
	})

	t.Run("missing audio fails the stage", func(t *testing.T) {
		svc, m := newPipelineService()
		visit := testVisit()
		visit.PipelineState = entities.NewPipelineState()

		m.visitRepo.On("GetByID", mock.Anything, "v1").Return(visit, nil)
		m.visitRepo.On("UpdatePipelineStage", mock.Anything, "v1", entities.StageTranscription, mock.Anything).Return(nil)

		err := svc.ExecuteStage(context.Background(), "v1", entities.StageTranscription)

		require.Error(t, err)
		assert.Equal(t, apperrors.ErrorTypeMissingInput, apperrors.TypeOf(err))
	})

	t.Run("alignment with zero turns labels every segment with the default", func(t *testing.T) {
		svc, m := newPipelineService()
		segments := []*entities.TranscriptSegment{
			seg("s1", 0, 5000, "Good morning"),
			seg("s2", 5000, 10000, "Hello"),
		}

		m.visitRepo.On("UpdatePipelineStage", mock.Anything, "v1", entities.StageAlignment, mock.Anything).Return(nil)
		m.transcriptRepo.On("ListSegments", mock.Anything, "v1").Return(segments, nil)
		m.transcriptRepo.On("ListTurns", mock.Anything, "v1").Return([]*entities.DiarizationTurn{}, nil)
		m.transcriptRepo.On("UpdateSpeakerLabels", mock.Anything, "v1", map[string]string{
			"s1": "Speaker A",
			"s2": "Speaker A",
		}).Return(nil)
		m.visitRepo.On("UpdatePipelineStage", mock.Anything, "v1", entities.StageBilling, mock.Anything).Return(nil)
		m.queue.On("Enqueue", mock.Anything, mock.Anything).Return(nil)

		err := svc.ExecuteStage(context.Background(), "v1", entities.StageAlignment)

		require.NoError(t, err)
		m.transcriptRepo.AssertExpectations(t)
	})

	t.Run("billing with no segments fails fast", func(t *testing.T) {
		svc, m := newPipelineService()
		visit := pipelineVisit()

		m.visitRepo.On("GetByID", mock.Anything, "v1").Return(visit, nil)
		m.visitRepo.On("UpdatePipelineStage", mock.Anything, "v1", entities.StageBilling, mock.Anything).Return(nil)
		m.transcriptRepo.On("ListSegments", mock.Anything, "v1").Return([]*entities.TranscriptSegment{}, nil)

		err := svc.ExecuteStage(context.Background(), "v1", entities.StageBilling)

		require.Error(t, err)
		assert.Equal(t, apperrors.ErrorTypeMissingInput, apperrors.TypeOf(err))
		m.billingRepo.AssertNotCalled(t, "ReplaceBlocks", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("final stage moves visit to pending review", func(t *testing.T) {
		svc, m := newPipelineService()
		visit := pipelineVisit()
		note := &entities.VisitNote{ID: "n1", VisitID: "v1", Narrative: "Visit summary."}
		blocks := []*entities.BillableBlock{
			{ID: "b1", VisitID: "v1", Code: "S5135", Category: entities.CategoryCompanionship, Minutes: 60},
		}

		m.visitRepo.On("GetByID", mock.Anything, "v1").Return(visit, nil)
		m.visitRepo.On("UpdatePipelineStage", mock.Anything, "v1", entities.StageContract, mock.Anything).Return(nil)
		m.noteRepo.On("GetByVisitID", mock.Anything, "v1").Return(note, nil)
		m.billingRepo.On("ListBlocks", mock.Anything, "v1").Return(blocks, nil)
		m.contractRepo.On("Upsert", mock.Anything, mock.MatchedBy(func(c *entities.ContractDocument) bool {
			return c.VisitID == "v1" && c.TotalMinutes == 60
		})).Return(nil)
		m.visitRepo.On("UpdateStatus", mock.Anything, "v1", entities.VisitStatusPendingReview).Return(nil)

		err := svc.ExecuteStage(context.Background(), "v1", entities.StageContract)

		require.NoError(t, err)
		m.visitRepo.AssertExpectations(t)
		m.contractRepo.AssertExpectations(t)
		m.queue.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
	})
}

func TestRetriggerStage(t *testing.T) {
	t.Run("re-enqueues a known stage", func(t *testing.T) {
		svc, m := newPipelineService()
		m.visitRepo.On("GetByID", mock.Anything, "v1").Return(pipelineVisit(), nil)
		m.visitRepo.On("UpdatePipelineStage", mock.Anything, "v1", entities.StageBilling, mock.Anything).Return(nil)
		m.queue.On("Enqueue", mock.Anything, mock.MatchedBy(func(task *providers.StageTask) bool {
			return task.Stage == entities.StageBilling
		})).Return(nil)

		err := svc.RetriggerStage(context.Background(), "v1", entities.StageBilling)

		require.NoError(t, err)
		m.queue.AssertExpectations(t)
	})

	t.Run("rejects unknown stage", func(t *testing.T) {
		svc, _ := newPipelineService()

		err := svc.RetriggerStage(context.Background(), "v1", entities.Stage("publish"))

		require.Error(t, err)
		assert.Equal(t, apperrors.ErrorTypeValidation, apperrors.TypeOf(err))
	})
}
