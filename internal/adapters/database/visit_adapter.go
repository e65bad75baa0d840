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

// VisitAdapter implements the VisitRepository interface
type VisitAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewVisitAdapter creates a new visit adapter
func NewVisitAdapter(client *postgres.Client) repositories.VisitRepository {
	return &VisitAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

var visitColumns = []interface{}{
	"id", "client_id", "caregiver_id", "scheduled_start", "scheduled_end",
	"actual_start", "actual_end", "audio_asset_key", "status",
	"pipeline_state", "created_at", "updated_at",
}

// Create creates a new visit
func (a *VisitAdapter) Create(ctx context.Context, visit *entities.Visit) error {
	stateJSON, err := json.Marshal(visit.PipelineState)
	if err != nil {
		return apperrors.NewInternalError("failed to marshal pipeline state", err)
	}

	record := goqu.Record{
		"id":              visit.ID,
		"client_id":       visit.ClientID,
		"caregiver_id":    visit.CaregiverID,
		"scheduled_start": visit.ScheduledStart,
		"scheduled_end":   visit.ScheduledEnd,
		"actual_start":    visit.ActualStart,
		"actual_end":      visit.ActualEnd,
		"audio_asset_key": visit.AudioAssetKey,
		"status":          visit.Status,
		"pipeline_state":  string(stateJSON),
		"created_at":      visit.CreatedAt,
		"updated_at":      visit.UpdatedAt,
	}

	query, args, err := a.db.Insert("visits").Rows(record).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	_, err = a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewInternalError("failed to create visit", err)
	}

	return nil
}

// GetByID retrieves a visit by ID
func (a *VisitAdapter) GetByID(ctx context.Context, id string) (*entities.Visit, error) {
	query, args, err := a.db.Select(visitColumns...).From("visits").
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	visit, err := scanVisit(a.client.DB().QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("visit with id %s not found", id))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get visit", err)
	}

	return visit, nil
}

// Update updates a visit
func (a *VisitAdapter) Update(ctx context.Context, visit *entities.Visit) error {
	visit.UpdatedAt = time.Now()

	stateJSON, err := json.Marshal(visit.PipelineState)
	if err != nil {
		return apperrors.NewInternalError("failed to marshal pipeline state", err)
	}

	record := goqu.Record{
		"actual_start":    visit.ActualStart,
		"actual_end":      visit.ActualEnd,
		"audio_asset_key": visit.AudioAssetKey,
		"status":          visit.Status,
		"pipeline_state":  string(stateJSON),
		"updated_at":      visit.UpdatedAt,
	}

	query, args, err := a.db.Update("visits").
		Set(record).
		Where(goqu.Ex{"id": visit.ID}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build update query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewInternalError("failed to update visit", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apperrors.NewInternalError("failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("visit with id %s not found", visit.ID))
	}

	return nil
}

// UpdateStatus updates only the visit-level status
func (a *VisitAdapter) UpdateStatus(ctx context.Context, id string, status entities.VisitStatus) error {
	query, args, err := a.db.Update("visits").
		Set(goqu.Record{
			"status":     status,
			"updated_at": time.Now(),
		}).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build status query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewInternalError("failed to update visit status", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apperrors.NewInternalError("failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("visit with id %s not found", id))
	}

	return nil
}

// UpdatePipelineStage merges a single stage record into the visit's pipeline
// state. The row is locked for the duration of the read-modify-write so
// concurrent stage writers cannot clobber unrelated stage keys.
func (a *VisitAdapter) UpdatePipelineStage(ctx context.Context, id string, stage entities.Stage, record entities.StageRecord) error {
	tx, err := a.client.BeginTx(ctx)
	if err != nil {
		return apperrors.NewInternalError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	selectQuery, selectArgs, err := a.db.Select("pipeline_state").From("visits").
		Where(goqu.Ex{"id": id}).
		ForUpdate(goqu.Wait).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build select query", err)
	}

	var stateJSON []byte
	err = tx.QueryRowContext(ctx, selectQuery, selectArgs...).Scan(&stateJSON)
	if err == sql.ErrNoRows {
		return apperrors.NewNotFoundError(fmt.Sprintf("visit with id %s not found", id))
	}
	if err != nil {
		return apperrors.NewInternalError("failed to read pipeline state", err)
	}

	state := entities.PipelineState{}
	if len(stateJSON) > 0 {
		if err := json.Unmarshal(stateJSON, &state); err != nil {
			return apperrors.NewInternalError("failed to unmarshal pipeline state", err)
		}
	}
	state[stage] = record

	merged, err := json.Marshal(state)
	if err != nil {
		return apperrors.NewInternalError("failed to marshal pipeline state", err)
	}

	updateQuery, updateArgs, err := a.db.Update("visits").
		Set(goqu.Record{
			"pipeline_state": string(merged),
			"updated_at":     time.Now(),
		}).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build update query", err)
	}

	if _, err := tx.ExecContext(ctx, updateQuery, updateArgs...); err != nil {
		return apperrors.NewInternalError("failed to write pipeline state", err)
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewInternalError("failed to commit pipeline state", err)
	}

	return nil
}

// List retrieves visits matching the filter
func (a *VisitAdapter) List(ctx context.Context, filter repositories.VisitFilter) ([]*entities.Visit, error) {
	ds := a.db.Select(visitColumns...).From("visits")

	if filter.ClientID != "" {
		ds = ds.Where(goqu.Ex{"client_id": filter.ClientID})
	}
	if filter.CaregiverID != "" {
		ds = ds.Where(goqu.Ex{"caregiver_id": filter.CaregiverID})
	}
	if filter.Status != "" {
		ds = ds.Where(goqu.Ex{"status": filter.Status})
	}
	if filter.From != nil {
		ds = ds.Where(goqu.C("scheduled_start").Gte(*filter.From))
	}
	if filter.To != nil {
		ds = ds.Where(goqu.C("scheduled_start").Lte(*filter.To))
	}

	ds = ds.Order(goqu.I("scheduled_start").Desc())

	if filter.Limit > 0 {
		ds = ds.Limit(uint(filter.Limit))
	}
	if filter.Offset > 0 {
		ds = ds.Offset(uint(filter.Offset))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build list query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list visits", err)
	}
	defer rows.Close()

	var visits []*entities.Visit
	for rows.Next() {
		visit, err := scanVisit(rows)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan visit", err)
		}
		visits = append(visits, visit)
	}

	return visits, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVisit(row rowScanner) (*entities.Visit, error) {
	visit := &entities.Visit{}
	var actualStart, actualEnd sql.NullTime
	var audioAssetKey sql.NullString
	var stateJSON []byte

	err := row.Scan(
		&visit.ID,
		&visit.ClientID,
		&visit.CaregiverID,
		&visit.ScheduledStart,
		&visit.ScheduledEnd,
		&actualStart,
		&actualEnd,
		&audioAssetKey,
		&visit.Status,
		&stateJSON,
		&visit.CreatedAt,
		&visit.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if actualStart.Valid {
		visit.ActualStart = &actualStart.Time
	}
	if actualEnd.Valid {
		visit.ActualEnd = &actualEnd.Time
	}
	visit.AudioAssetKey = audioAssetKey.String

	visit.PipelineState = entities.PipelineState{}
	if len(stateJSON) > 0 {
		if err := json.Unmarshal(stateJSON, &visit.PipelineState); err != nil {
			return nil, err
		}
	}

	return visit, nil
}
