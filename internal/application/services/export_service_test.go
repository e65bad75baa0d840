package services

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/caretrail/visit-pipeline/internal/domain/entities"
	apperrors "github.com/caretrail/visit-pipeline/pkg/errors"
)

func TestExportBilling(t *testing.T) {
	t.Run("renders workbook and marks visit exported", func(t *testing.T) {
		visitRepo := new(MockVisitRepository)
		billingRepo := new(MockBillingRepository)
		svc := NewExportService(visitRepo, billingRepo)

		visit := pipelineVisit()
		visit.Status = entities.VisitStatusApproved

		visitRepo.On("GetByID", mock.Anything, "v1").Return(visit, nil)
		billingRepo.On("ListBlocks", mock.Anything, "v1").Return([]*entities.BillableBlock{
			{ID: "b1", Code: "T1019", Category: entities.CategoryMedReminder, Description: "Medication reminder", StartMs: 0, EndMs: 300000, Minutes: 5},
			{ID: "b2", Code: "S5135", Category: entities.CategoryCompanionship, Description: "Companionship", StartMs: 300000, EndMs: 900000, Minutes: 10},
		}, nil)
		visitRepo.On("UpdateStatus", mock.Anything, "v1", entities.VisitStatusExported).Return(nil)

		workbook, err := svc.ExportBilling(context.Background(), "v1")

		require.NoError(t, err)
		require.NotEmpty(t, workbook)
		visitRepo.AssertExpectations(t)

		f, err := excelize.OpenReader(bytes.NewReader(workbook))
		require.NoError(t, err)
		defer f.Close()

		code, err := f.GetCellValue("Billing", "A6")
		require.NoError(t, err)
		assert.Equal(t, "T1019", code)

		total, err := f.GetCellValue("Billing", "B9")
		require.NoError(t, err)
		assert.Equal(t, "15", total)
	})

	t.Run("rejects unapproved visits", func(t *testing.T) {
		visitRepo := new(MockVisitRepository)
		billingRepo := new(MockBillingRepository)
		svc := NewExportService(visitRepo, billingRepo)

		visit := pipelineVisit()
		visit.Status = entities.VisitStatusPendingReview
		visitRepo.On("GetByID", mock.Anything, "v1").Return(visit, nil)

		_, err := svc.ExportBilling(context.Background(), "v1")

		require.Error(t, err)
		assert.Equal(t, apperrors.ErrorTypeConflict, apperrors.TypeOf(err))
		billingRepo.AssertNotCalled(t, "ListBlocks", mock.Anything, mock.Anything)
	})
}
