package database

import (
	"context"
	"database/sql"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"

	"github.com/caretrail/visit-pipeline/internal/domain/entities"
	"github.com/caretrail/visit-pipeline/internal/domain/repositories"
	"github.com/caretrail/visit-pipeline/internal/infrastructure/clients/postgres"
	apperrors "github.com/caretrail/visit-pipeline/pkg/errors"
)

// TranscriptAdapter implements the TranscriptRepository interface
type TranscriptAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewTranscriptAdapter creates a new transcript adapter
func NewTranscriptAdapter(client *postgres.Client) repositories.TranscriptRepository {
	return &TranscriptAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// ReplaceSegments atomically replaces all segments for a visit. Delete and
// insert share one transaction so a re-run never leaves duplicates.
func (a *TranscriptAdapter) ReplaceSegments(ctx context.Context, visitID string, segments []*entities.TranscriptSegment) error {
	tx, err := a.client.BeginTx(ctx)
	if err != nil {
		return apperrors.NewInternalError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	deleteQuery, deleteArgs, err := a.db.Delete("transcript_segments").
		Where(goqu.Ex{"visit_id": visitID}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build delete query", err)
	}
	if _, err := tx.ExecContext(ctx, deleteQuery, deleteArgs...); err != nil {
		return apperrors.NewInternalError("failed to delete segments", err)
	}

	if len(segments) > 0 {
		records := make([]interface{}, 0, len(segments))
		for _, seg := range segments {
			records = append(records, goqu.Record{
				"id":            seg.ID,
				"visit_id":      seg.VisitID,
				"start_ms":      seg.StartMs,
				"end_ms":        seg.EndMs,
				"text":          seg.Text,
				"speaker_label": seg.SpeakerLabel,
				"confidence":    seg.Confidence,
				"source":        seg.Source,
				"created_at":    seg.CreatedAt,
			})
		}

		insertQuery, insertArgs, err := a.db.Insert("transcript_segments").Rows(records...).ToSQL()
		if err != nil {
			return apperrors.NewInternalError("failed to build insert query", err)
		}
		if _, err := tx.ExecContext(ctx, insertQuery, insertArgs...); err != nil {
			return apperrors.NewInternalError("failed to insert segments", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewInternalError("failed to commit segment replacement", err)
	}

	return nil
}

// ListSegments retrieves a visit's segments ordered by start_ms
func (a *TranscriptAdapter) ListSegments(ctx context.Context, visitID string) ([]*entities.TranscriptSegment, error) {
	query, args, err := a.db.Select(
		"id", "visit_id", "start_ms", "end_ms", "text",
		"speaker_label", "confidence", "source", "created_at",
	).From("transcript_segments").
		Where(goqu.Ex{"visit_id": visitID}).
		Order(goqu.I("start_ms").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build list query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list segments", err)
	}
	defer rows.Close()

	var segments []*entities.TranscriptSegment
	for rows.Next() {
		seg := &entities.TranscriptSegment{}
		var speakerLabel sql.NullString
		var confidence sql.NullFloat64

		err := rows.Scan(
			&seg.ID,
			&seg.VisitID,
			&seg.StartMs,
			&seg.EndMs,
			&seg.Text,
			&speakerLabel,
			&confidence,
			&seg.Source,
			&seg.CreatedAt,
		)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan segment", err)
		}

		seg.SpeakerLabel = speakerLabel.String
		if confidence.Valid {
			seg.Confidence = &confidence.Float64
		}

		segments = append(segments, seg)
	}

	return segments, nil
}

// UpdateSpeakerLabels writes alignment output onto existing segments within
// one transaction.
func (a *TranscriptAdapter) UpdateSpeakerLabels(ctx context.Context, visitID string, labels map[string]string) error {
	if len(labels) == 0 {
		return nil
	}

	tx, err := a.client.BeginTx(ctx)
	if err != nil {
		return apperrors.NewInternalError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	// Deterministic write order keeps re-runs reproducible under lock contention.
	segments, err := a.ListSegments(ctx, visitID)
	if err != nil {
		return err
	}

	for _, seg := range segments {
		label, ok := labels[seg.ID]
		if !ok {
			continue
		}

		query, args, err := a.db.Update("transcript_segments").
			Set(goqu.Record{"speaker_label": label}).
			Where(goqu.Ex{"id": seg.ID, "visit_id": visitID}).
			ToSQL()
		if err != nil {
			return apperrors.NewInternalError("failed to build label query", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return apperrors.NewInternalError("failed to update speaker label", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewInternalError("failed to commit speaker labels", err)
	}

	return nil
}

// ReplaceTurns atomically replaces all diarization turns for a visit
func (a *TranscriptAdapter) ReplaceTurns(ctx context.Context, visitID string, turns []*entities.DiarizationTurn) error {
	tx, err := a.client.BeginTx(ctx)
	if err != nil {
		return apperrors.NewInternalError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	deleteQuery, deleteArgs, err := a.db.Delete("diarization_turns").
		Where(goqu.Ex{"visit_id": visitID}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build delete query", err)
	}
	if _, err := tx.ExecContext(ctx, deleteQuery, deleteArgs...); err != nil {
		return apperrors.NewInternalError("failed to delete turns", err)
	}

	if len(turns) > 0 {
		records := make([]interface{}, 0, len(turns))
		for _, turn := range turns {
			records = append(records, goqu.Record{
				"id":         turn.ID,
				"visit_id":   turn.VisitID,
				"speaker":    turn.Speaker,
				"start_ms":   turn.StartMs,
				"end_ms":     turn.EndMs,
				"confidence": turn.Confidence,
				"created_at": turn.CreatedAt,
			})
		}

		insertQuery, insertArgs, err := a.db.Insert("diarization_turns").Rows(records...).ToSQL()
		if err != nil {
			return apperrors.NewInternalError("failed to build insert query", err)
		}
		if _, err := tx.ExecContext(ctx, insertQuery, insertArgs...); err != nil {
			return apperrors.NewInternalError("failed to insert turns", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewInternalError("failed to commit turn replacement", err)
	}

	return nil
}

// ListTurns retrieves a visit's turns ordered by start_ms
func (a *TranscriptAdapter) ListTurns(ctx context.Context, visitID string) ([]*entities.DiarizationTurn, error) {
	query, args, err := a.db.Select(
		"id", "visit_id", "speaker", "start_ms", "end_ms", "confidence", "created_at",
	).From("diarization_turns").
		Where(goqu.Ex{"visit_id": visitID}).
		Order(goqu.I("start_ms").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build list query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list turns", err)
	}
	defer rows.Close()

	var turns []*entities.DiarizationTurn
	for rows.Next() {
		turn := &entities.DiarizationTurn{}
		var confidence sql.NullFloat64

		err := rows.Scan(
			&turn.ID,
			&turn.VisitID,
			&turn.Speaker,
			&turn.StartMs,
			&turn.EndMs,
			&confidence,
			&turn.CreatedAt,
		)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan turn", err)
		}

		if confidence.Valid {
			turn.Confidence = &confidence.Float64
		}

		turns = append(turns, turn)
	}

	return turns, nil
}
