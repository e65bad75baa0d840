package repositories

import (
	"context"

	"github.com/caretrail/visit-pipeline/internal/domain/entities"
)

// BillingRepository defines the interface for billable block storage
type BillingRepository interface {
	// ReplaceBlocks deletes all prior blocks for the visit and inserts the
	// freshly computed set within one transaction.
	ReplaceBlocks(ctx context.Context, visitID string, blocks []*entities.BillableBlock) error

	// ListBlocks retrieves a visit's blocks ordered by start_ms
	ListBlocks(ctx context.Context, visitID string) ([]*entities.BillableBlock, error)

	// GetBlock retrieves a single block by ID
	GetBlock(ctx context.Context, id string) (*entities.BillableBlock, error)

	// AdjustBlock records a reviewer adjustment on a block
	AdjustBlock(ctx context.Context, id string, minutes int, reason string) error
}
