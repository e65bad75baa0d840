package repositories

import (
	"context"

	"github.com/caretrail/visit-pipeline/internal/domain/entities"
)

// NoteRepository defines the interface for visit note storage
type NoteRepository interface {
	// Upsert writes the note for a visit, replacing any existing one (one
	// note per visit).
	Upsert(ctx context.Context, note *entities.VisitNote) error

	// GetByVisitID retrieves the note for a visit
	GetByVisitID(ctx context.Context, visitID string) (*entities.VisitNote, error)

	// Approve marks the note approved by the given reviewer
	Approve(ctx context.Context, visitID string, approvedBy string) error
}

// ContractRepository defines the interface for contract document storage
type ContractRepository interface {
	// Upsert writes the contract document for a visit
	Upsert(ctx context.Context, contract *entities.ContractDocument) error

	// GetByVisitID retrieves the contract for a visit
	GetByVisitID(ctx context.Context, visitID string) (*entities.ContractDocument, error)
}
