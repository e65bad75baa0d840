package database

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caretrail/visit-pipeline/internal/domain/entities"
	"github.com/caretrail/visit-pipeline/internal/infrastructure/clients/postgres"
)

func setupVisitAdapter(t *testing.T) (*VisitAdapter, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	adapter := NewVisitAdapter(postgres.NewClientFromDB(db)).(*VisitAdapter)
	return adapter, mock
}

func TestVisitAdapter_UpdatePipelineStage(t *testing.T) {
	t.Run("merges one stage without clobbering other keys", func(t *testing.T) {
		adapter, mock := setupVisitAdapter(t)

		existing := entities.PipelineState{
			entities.StageTranscription: {Status: entities.StageStatusCompleted},
			entities.StageDiarization:   {Status: entities.StageStatusProcessing},
		}
		existingJSON, err := json.Marshal(existing)
		require.NoError(t, err)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT "pipeline_state" FROM "visits"`).
			WillReturnRows(sqlmock.NewRows([]string{"pipeline_state"}).AddRow(existingJSON))
		// The merged state must retain the transcription key alongside the
		// freshly written diarization record.
		mock.ExpectExec(`UPDATE "visits" SET .*transcription.*`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err = adapter.UpdatePipelineStage(
			context.Background(),
			"visit-1",
			entities.StageDiarization,
			entities.StageRecord{Status: entities.StageStatusCompleted},
		)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns not found for unknown visit", func(t *testing.T) {
		adapter, mock := setupVisitAdapter(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT "pipeline_state" FROM "visits"`).
			WillReturnRows(sqlmock.NewRows([]string{"pipeline_state"}))
		mock.ExpectRollback()

		err := adapter.UpdatePipelineStage(
			context.Background(),
			"missing",
			entities.StageBilling,
			entities.StageRecord{Status: entities.StageStatusFailed, Error: "no segments"},
		)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})
}

func TestNewPipelineState(t *testing.T) {
	state := entities.NewPipelineState()

	require.Len(t, state, len(entities.StageOrder))
	assert.Equal(t, entities.StageStatusQueued, state[entities.StageTranscription].Status)
	for _, stage := range entities.StageOrder[1:] {
		assert.Equal(t, entities.StageStatusPending, state[stage].Status)
	}
}
