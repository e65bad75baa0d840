package services

import (
	"context"

	"github.com/caretrail/visit-pipeline/internal/domain/entities"
	"github.com/caretrail/visit-pipeline/internal/domain/providers"
	"github.com/caretrail/visit-pipeline/internal/domain/repositories"
	"github.com/caretrail/visit-pipeline/internal/infrastructure/observability"
	apperrors "github.com/caretrail/visit-pipeline/pkg/errors"
)

// ReviewService handles caregiver review of pipeline output: adjusting
// billable blocks and approving the visit note. Adjustments never overwrite
// the computed minutes; the original figure stays on the block for audit.
type ReviewService struct {
	visitRepo   repositories.VisitRepository
	billingRepo repositories.BillingRepository
	noteRepo    repositories.NoteRepository
	noteSearch  providers.NoteSearchRepository
}

func NewReviewService(
	visitRepo repositories.VisitRepository,
	billingRepo repositories.BillingRepository,
	noteRepo repositories.NoteRepository,
	noteSearch providers.NoteSearchRepository,
) *ReviewService {
	return &ReviewService{
		visitRepo:   visitRepo,
		billingRepo: billingRepo,
		noteRepo:    noteRepo,
		noteSearch:  noteSearch,
	}
}

// AdjustBlock records a reviewer override of a block's billed minutes.
func (s *ReviewService) AdjustBlock(ctx context.Context, blockID string, minutes int, reason string) (*entities.BillableBlock, error) {
	if minutes < 0 {
		return nil, apperrors.NewValidationError("adjusted minutes must not be negative")
	}
	if reason == "" {
		return nil, apperrors.NewValidationError("adjustment reason is required")
	}

	if err := s.billingRepo.AdjustBlock(ctx, blockID, minutes, reason); err != nil {
		return nil, err
	}

	block, err := s.billingRepo.GetBlock(ctx, blockID)
	if err != nil {
		return nil, err
	}

	observability.LoggerFromContext(ctx).Info().
		Str("block_id", blockID).
		Int("minutes", minutes).
		Msg("Block adjusted")

	return block, nil
}

// ApproveNote marks the visit note approved and moves the visit to approved
// status. Approval requires the pipeline to have reached review.
func (s *ReviewService) ApproveNote(ctx context.Context, visitID, approvedBy string) (*entities.VisitNote, error) {
	if approvedBy == "" {
		return nil, apperrors.NewValidationError("approver is required")
	}

	visit, err := s.visitRepo.GetByID(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if visit.Status != entities.VisitStatusPendingReview {
		return nil, apperrors.NewConflictError("visit is not pending review")
	}

	if err := s.noteRepo.Approve(ctx, visitID, approvedBy); err != nil {
		return nil, err
	}
	if err := s.visitRepo.UpdateStatus(ctx, visitID, entities.VisitStatusApproved); err != nil {
		return nil, err
	}

	note, err := s.noteRepo.GetByVisitID(ctx, visitID)
	if err != nil {
		return nil, err
	}

	if s.noteSearch != nil {
		if err := s.noteSearch.IndexNote(ctx, note); err != nil {
			observability.LoggerFromContext(ctx).Warn().Err(err).
				Str("visit_id", visitID).
				Msg("Note reindex after approval failed")
		}
	}

	observability.LoggerFromContext(ctx).Info().
		Str("visit_id", visitID).
		Str("approved_by", approvedBy).
		Msg("Note approved")

	return note, nil
}
