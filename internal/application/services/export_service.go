package services

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/caretrail/visit-pipeline/internal/domain/entities"
	"github.com/caretrail/visit-pipeline/internal/domain/repositories"
	"github.com/caretrail/visit-pipeline/internal/infrastructure/observability"
	apperrors "github.com/caretrail/visit-pipeline/pkg/errors"
)

// ExportService renders a visit's approved billing into an XLSX workbook for
// hand-off to the billing back office.
type ExportService struct {
	visitRepo   repositories.VisitRepository
	billingRepo repositories.BillingRepository
}

func NewExportService(visitRepo repositories.VisitRepository, billingRepo repositories.BillingRepository) *ExportService {
	return &ExportService{visitRepo: visitRepo, billingRepo: billingRepo}
}

var exportHeaders = []string{"Code", "Category", "Description", "Start (ms)", "End (ms)", "Minutes", "Adjusted", "Flagged", "Flag reason"}

// ExportBilling builds the workbook for an approved visit and marks the visit
// exported. Only approved visits may be exported.
func (s *ExportService) ExportBilling(ctx context.Context, visitID string) ([]byte, error) {
	visit, err := s.visitRepo.GetByID(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if visit.Status != entities.VisitStatusApproved && visit.Status != entities.VisitStatusExported {
		return nil, apperrors.NewConflictError("visit billing is not approved for export")
	}

	blocks, err := s.billingRepo.ListBlocks(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		return nil, apperrors.NewMissingInputError("visit has no billable blocks")
	}

	workbook, err := s.buildWorkbook(visit, blocks)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build export workbook", err)
	}

	if visit.Status != entities.VisitStatusExported {
		if err := s.visitRepo.UpdateStatus(ctx, visitID, entities.VisitStatusExported); err != nil {
			return nil, err
		}
	}

	observability.LoggerFromContext(ctx).Info().
		Str("visit_id", visitID).
		Int("blocks", len(blocks)).
		Msg("Billing exported")

	return workbook, nil
}

func (s *ExportService) buildWorkbook(visit *entities.Visit, blocks []*entities.BillableBlock) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Billing"
	f.SetSheetName("Sheet1", sheet)

	f.SetCellValue(sheet, "A1", "Visit")
	f.SetCellValue(sheet, "B1", visit.ID)
	f.SetCellValue(sheet, "A2", "Date")
	f.SetCellValue(sheet, "B2", visit.ScheduledStart.Format("2006-01-02"))
	f.SetCellValue(sheet, "A3", "Caregiver")
	f.SetCellValue(sheet, "B3", visit.CaregiverID)

	headerRow := 5
	for col, header := range exportHeaders {
		cell, err := excelize.CoordinatesToCellName(col+1, headerRow)
		if err != nil {
			return nil, err
		}
		f.SetCellValue(sheet, cell, header)
	}

	for i, block := range blocks {
		row := headerRow + 1 + i
		adjusted := ""
		if block.AdjustedMinutes != nil {
			adjusted = fmt.Sprintf("%d (%s)", *block.AdjustedMinutes, block.AdjustmentReason)
		}
		values := []interface{}{
			block.Code,
			string(block.Category),
			block.Description,
			block.StartMs,
			block.EndMs,
			block.Minutes,
			adjusted,
			block.IsFlagged,
			block.FlagReason,
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return nil, err
			}
			f.SetCellValue(sheet, cell, value)
		}
	}

	totalRow := headerRow + len(blocks) + 2
	f.SetCellValue(sheet, fmt.Sprintf("A%d", totalRow), "Total minutes")
	f.SetCellValue(sheet, fmt.Sprintf("B%d", totalRow), TotalMinutes(blocks))

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
