package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/caretrail/visit-pipeline/internal/domain/entities"
	"github.com/caretrail/visit-pipeline/internal/domain/providers"
	"github.com/caretrail/visit-pipeline/internal/domain/repositories"
	"github.com/caretrail/visit-pipeline/internal/infrastructure/observability"
	apperrors "github.com/caretrail/visit-pipeline/pkg/errors"
)

const visitStatusCacheTTL = 15 * time.Second

// VisitStatusView is the read-model served for pipeline status polling.
type VisitStatusView struct {
	VisitID       string                 `json:"visit_id"`
	Status        entities.VisitStatus   `json:"status"`
	PipelineState entities.PipelineState `json:"pipeline_state"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// VisitService handles visit lifecycle operations and status reads. Status
// reads are cached briefly since mobile clients poll while the pipeline runs.
type VisitService struct {
	visitRepo repositories.VisitRepository
	cache     providers.CacheProvider
	metrics   *observability.Metrics
}

func NewVisitService(visitRepo repositories.VisitRepository, cache providers.CacheProvider, metrics *observability.Metrics) *VisitService {
	return &VisitService{visitRepo: visitRepo, cache: cache, metrics: metrics}
}

// CreateVisit schedules a new visit.
func (s *VisitService) CreateVisit(ctx context.Context, visit *entities.Visit) (*entities.Visit, error) {
	if visit.ClientID == "" || visit.CaregiverID == "" {
		return nil, apperrors.NewValidationError("client and caregiver are required")
	}
	if !visit.ScheduledEnd.After(visit.ScheduledStart) {
		return nil, apperrors.NewValidationError("scheduled end must be after scheduled start")
	}

	now := time.Now()
	visit.ID = uuid.New().String()
	visit.Status = entities.VisitStatusScheduled
	visit.PipelineState = entities.NewPipelineState()
	visit.CreatedAt = now
	visit.UpdatedAt = now

	if err := s.visitRepo.Create(ctx, visit); err != nil {
		return nil, err
	}

	observability.LoggerFromContext(ctx).Info().
		Str("visit_id", visit.ID).
		Str("client_id", visit.ClientID).
		Msg("Visit created")

	return visit, nil
}

// GetVisit retrieves a visit by ID.
func (s *VisitService) GetVisit(ctx context.Context, id string) (*entities.Visit, error) {
	return s.visitRepo.GetByID(ctx, id)
}

// ListVisits retrieves visits matching the filter.
func (s *VisitService) ListVisits(ctx context.Context, filter repositories.VisitFilter) ([]*entities.Visit, error) {
	return s.visitRepo.List(ctx, filter)
}

// GetVisitStatus returns the visit's pipeline status, served from cache when
// fresh.
func (s *VisitService) GetVisitStatus(ctx context.Context, id string) (*VisitStatusView, error) {
	cacheKey := statusCacheKey(id)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey); err == nil && cached != nil {
			var view VisitStatusView
			if err := json.Unmarshal(cached, &view); err == nil {
				observability.RecordCacheHit(ctx, s.metrics, cacheKey)
				return &view, nil
			}
		}
		observability.RecordCacheMiss(ctx, s.metrics, cacheKey)
	}

	visit, err := s.visitRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	view := &VisitStatusView{
		VisitID:       visit.ID,
		Status:        visit.Status,
		PipelineState: visit.PipelineState,
		UpdatedAt:     visit.UpdatedAt,
	}

	if s.cache != nil {
		if payload, err := json.Marshal(view); err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, visitStatusCacheTTL); err != nil {
				observability.LoggerFromContext(ctx).Warn().Err(err).
					Str("visit_id", id).
					Msg("Failed to cache visit status")
			}
		}
	}

	return view, nil
}

// InvalidateStatus drops the cached status view for a visit. Called after
// writes that change pipeline state outside the normal worker flow.
func (s *VisitService) InvalidateStatus(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, statusCacheKey(id)); err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).
			Str("visit_id", id).
			Msg("Failed to invalidate visit status cache")
	}
}

func statusCacheKey(visitID string) string {
	return fmt.Sprintf("visit:status:%s", visitID)
}
