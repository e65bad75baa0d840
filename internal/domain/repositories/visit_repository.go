package repositories

import (
	"context"
	"time"

	"github.com/caretrail/visit-pipeline/internal/domain/entities"
)

// VisitRepository defines the interface for visit data operations
type VisitRepository interface {
	// Create creates a new visit
	Create(ctx context.Context, visit *entities.Visit) error

	// GetByID retrieves a visit by ID
	GetByID(ctx context.Context, id string) (*entities.Visit, error)

	// Update updates a visit
	Update(ctx context.Context, visit *entities.Visit) error

	// UpdateStatus updates only the visit-level status
	UpdateStatus(ctx context.Context, id string, status entities.VisitStatus) error

	// UpdatePipelineStage merges a single stage record into the visit's
	// pipeline state via read-modify-write, leaving other stage keys intact.
	UpdatePipelineStage(ctx context.Context, id string, stage entities.Stage, record entities.StageRecord) error

	// List retrieves visits matching the filter
	List(ctx context.Context, filter VisitFilter) ([]*entities.Visit, error)
}

// VisitFilter defines filters for listing visits
type VisitFilter struct {
	ClientID    string
	CaregiverID string
	Status      entities.VisitStatus
	From        *time.Time
	To          *time.Time
	Limit       int
	Offset      int
}
