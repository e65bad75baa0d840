package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"

	"github.com/caretrail/visit-pipeline/internal/domain/entities"
	"github.com/caretrail/visit-pipeline/internal/domain/repositories"
	"github.com/caretrail/visit-pipeline/internal/infrastructure/clients/postgres"
	apperrors "github.com/caretrail/visit-pipeline/pkg/errors"
)

// NoteAdapter implements the NoteRepository interface
type NoteAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewNoteAdapter creates a new note adapter
func NewNoteAdapter(client *postgres.Client) repositories.NoteRepository {
	return &NoteAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// Upsert writes the note for a visit, replacing any existing one. The unique
// visit_id constraint enforces one note per visit.
func (a *NoteAdapter) Upsert(ctx context.Context, note *entities.VisitNote) error {
	structuredJSON, err := json.Marshal(note.StructuredData)
	if err != nil {
		return apperrors.NewInternalError("failed to marshal structured note", err)
	}

	record := goqu.Record{
		"id":              note.ID,
		"visit_id":        note.VisitID,
		"structured_data": string(structuredJSON),
		"narrative":       note.Narrative,
		"is_approved":     note.IsApproved,
		"approved_by":     note.ApprovedBy,
		"approved_at":     note.ApprovedAt,
		"created_at":      note.CreatedAt,
		"updated_at":      note.UpdatedAt,
	}

	query, args, err := a.db.Insert("visit_notes").Rows(record).
		OnConflict(goqu.DoUpdate("visit_id", goqu.Record{
			"structured_data": string(structuredJSON),
			"narrative":       note.Narrative,
			"updated_at":      note.UpdatedAt,
		})).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build upsert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to upsert note", err)
	}

	return nil
}

// GetByVisitID retrieves the note for a visit
func (a *NoteAdapter) GetByVisitID(ctx context.Context, visitID string) (*entities.VisitNote, error) {
	query, args, err := a.db.Select(
		"id", "visit_id", "structured_data", "narrative",
		"is_approved", "approved_by", "approved_at", "created_at", "updated_at",
	).From("visit_notes").
		Where(goqu.Ex{"visit_id": visitID}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	note := &entities.VisitNote{}
	var structuredJSON []byte
	var approvedBy sql.NullString
	var approvedAt sql.NullTime

	err = a.client.DB().QueryRowContext(ctx, query, args...).Scan(
		&note.ID,
		&note.VisitID,
		&structuredJSON,
		&note.Narrative,
		&note.IsApproved,
		&approvedBy,
		&approvedAt,
		&note.CreatedAt,
		&note.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("note for visit %s not found", visitID))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get note", err)
	}

	note.ApprovedBy = approvedBy.String
	if approvedAt.Valid {
		note.ApprovedAt = &approvedAt.Time
	}
	if len(structuredJSON) > 0 {
		if err := json.Unmarshal(structuredJSON, &note.StructuredData); err != nil {
			return nil, apperrors.NewInternalError("failed to unmarshal structured note", err)
		}
	}

	return note, nil
}

// Approve marks the note approved by the given reviewer
func (a *NoteAdapter) Approve(ctx context.Context, visitID string, approvedBy string) error {
	now := time.Now()
	query, args, err := a.db.Update("visit_notes").
		Set(goqu.Record{
			"is_approved": true,
			"approved_by": approvedBy,
			"approved_at": now,
			"updated_at":  now,
		}).
		Where(goqu.Ex{"visit_id": visitID}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build approve query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewInternalError("failed to approve note", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apperrors.NewInternalError("failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("note for visit %s not found", visitID))
	}

	return nil
}

// ContractAdapter implements the ContractRepository interface
type ContractAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewContractAdapter creates a new contract adapter
func NewContractAdapter(client *postgres.Client) repositories.ContractRepository {
	return &ContractAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// Upsert writes the contract document for a visit
func (a *ContractAdapter) Upsert(ctx context.Context, contract *entities.ContractDocument) error {
	record := goqu.Record{
		"id":            contract.ID,
		"visit_id":      contract.VisitID,
		"content":       contract.Content,
		"total_minutes": contract.TotalMinutes,
		"created_at":    contract.CreatedAt,
	}

	query, args, err := a.db.Insert("contract_documents").Rows(record).
		OnConflict(goqu.DoUpdate("visit_id", goqu.Record{
			"content":       contract.Content,
			"total_minutes": contract.TotalMinutes,
		})).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build upsert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to upsert contract", err)
	}

	return nil
}

// GetByVisitID retrieves the contract for a visit
func (a *ContractAdapter) GetByVisitID(ctx context.Context, visitID string) (*entities.ContractDocument, error) {
	query, args, err := a.db.Select(
		"id", "visit_id", "content", "total_minutes", "created_at",
	).From("contract_documents").
		Where(goqu.Ex{"visit_id": visitID}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	contract := &entities.ContractDocument{}
	err = a.client.DB().QueryRowContext(ctx, query, args...).Scan(
		&contract.ID,
		&contract.VisitID,
		&contract.Content,
		&contract.TotalMinutes,
		&contract.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("contract for visit %s not found", visitID))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get contract", err)
	}

	return contract, nil
}
