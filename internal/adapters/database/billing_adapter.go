package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"

	"github.com/caretrail/visit-pipeline/internal/domain/entities"
	"github.com/caretrail/visit-pipeline/internal/domain/repositories"
	"github.com/caretrail/visit-pipeline/internal/infrastructure/clients/postgres"
	apperrors "github.com/caretrail/visit-pipeline/pkg/errors"
)

// BillingAdapter implements the BillingRepository interface
type BillingAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewBillingAdapter creates a new billing adapter
func NewBillingAdapter(client *postgres.Client) repositories.BillingRepository {
	return &BillingAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

var blockColumns = []interface{}{
	"id", "visit_id", "code", "category", "description", "start_ms", "end_ms",
	"minutes", "evidence", "is_flagged", "flag_reason", "adjusted_minutes",
	"adjustment_reason", "created_at",
}

// ReplaceBlocks deletes all prior blocks for the visit and inserts the fresh
// set in one transaction, so a billing re-run never leaves stale duplicates.
func (a *BillingAdapter) ReplaceBlocks(ctx context.Context, visitID string, blocks []*entities.BillableBlock) error {
	tx, err := a.client.BeginTx(ctx)
	if err != nil {
		return apperrors.NewInternalError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	deleteQuery, deleteArgs, err := a.db.Delete("billable_blocks").
		Where(goqu.Ex{"visit_id": visitID}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build delete query", err)
	}
	if _, err := tx.ExecContext(ctx, deleteQuery, deleteArgs...); err != nil {
		return apperrors.NewInternalError("failed to delete blocks", err)
	}

	if len(blocks) > 0 {
		records := make([]interface{}, 0, len(blocks))
		for _, block := range blocks {
			evidenceJSON, err := json.Marshal(block.Evidence)
			if err != nil {
				return apperrors.NewInternalError("failed to marshal evidence", err)
			}

			records = append(records, goqu.Record{
				"id":                block.ID,
				"visit_id":          block.VisitID,
				"code":              block.Code,
				"category":          block.Category,
				"description":       block.Description,
				"start_ms":          block.StartMs,
				"end_ms":            block.EndMs,
				"minutes":           block.Minutes,
				"evidence":          string(evidenceJSON),
				"is_flagged":        block.IsFlagged,
				"flag_reason":       block.FlagReason,
				"adjusted_minutes":  block.AdjustedMinutes,
				"adjustment_reason": block.AdjustmentReason,
				"created_at":        block.CreatedAt,
			})
		}

		insertQuery, insertArgs, err := a.db.Insert("billable_blocks").Rows(records...).ToSQL()
		if err != nil {
			return apperrors.NewInternalError("failed to build insert query", err)
		}
		if _, err := tx.ExecContext(ctx, insertQuery, insertArgs...); err != nil {
			return apperrors.NewInternalError("failed to insert blocks", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewInternalError("failed to commit block replacement", err)
	}

	return nil
}

// ListBlocks retrieves a visit's blocks ordered by start_ms
func (a *BillingAdapter) ListBlocks(ctx context.Context, visitID string) ([]*entities.BillableBlock, error) {
	query, args, err := a.db.Select(blockColumns...).From("billable_blocks").
		Where(goqu.Ex{"visit_id": visitID}).
		Order(goqu.I("start_ms").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build list query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list blocks", err)
	}
	defer rows.Close()

	var blocks []*entities.BillableBlock
	for rows.Next() {
		block, err := scanBlock(rows)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan block", err)
		}
		blocks = append(blocks, block)
	}

	return blocks, nil
}

// GetBlock retrieves a single block by ID
func (a *BillingAdapter) GetBlock(ctx context.Context, id string) (*entities.BillableBlock, error) {
	query, args, err := a.db.Select(blockColumns...).From("billable_blocks").
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	block, err := scanBlock(a.client.DB().QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("block with id %s not found", id))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get block", err)
	}

	return block, nil
}

// AdjustBlock records a reviewer adjustment on a block
func (a *BillingAdapter) AdjustBlock(ctx context.Context, id string, minutes int, reason string) error {
	query, args, err := a.db.Update("billable_blocks").
		Set(goqu.Record{
			"adjusted_minutes":  minutes,
			"adjustment_reason": reason,
		}).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build adjust query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewInternalError("failed to adjust block", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apperrors.NewInternalError("failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("block with id %s not found", id))
	}

	return nil
}

func scanBlock(row rowScanner) (*entities.BillableBlock, error) {
	block := &entities.BillableBlock{}
	var evidenceJSON []byte
	var flagReason, adjustmentReason sql.NullString
	var adjustedMinutes sql.NullInt64

	err := row.Scan(
		&block.ID,
		&block.VisitID,
		&block.Code,
		&block.Category,
		&block.Description,
		&block.StartMs,
		&block.EndMs,
		&block.Minutes,
		&evidenceJSON,
		&block.IsFlagged,
		&flagReason,
		&adjustedMinutes,
		&adjustmentReason,
		&block.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	block.FlagReason = flagReason.String
	block.AdjustmentReason = adjustmentReason.String
	if adjustedMinutes.Valid {
		minutes := int(adjustedMinutes.Int64)
		block.AdjustedMinutes = &minutes
	}

	if len(evidenceJSON) > 0 {
		if err := json.Unmarshal(evidenceJSON, &block.Evidence); err != nil {
			return nil, err
		}
	}

	return block, nil
}
