package handlers

import (
	"fmt"
	"net/http"

	"github.com/caretrail/visit-pipeline/internal/application/services"
)

// ExportHandler handles billing export HTTP requests
type ExportHandler struct {
	exportService *services.ExportService
}

// NewExportHandler creates a new export handler
func NewExportHandler(exportService *services.ExportService) *ExportHandler {
	return &ExportHandler{exportService: exportService}
}

// ExportBilling handles GET /api/visits/{id}/billing/export and streams the
// XLSX workbook.
func (h *ExportHandler) ExportBilling(w http.ResponseWriter, r *http.Request) {
	visitID := r.PathValue("id")
	if visitID == "" {
		respondWithError(w, http.StatusBadRequest, "visit ID is required")
		return
	}

	workbook, err := h.exportService.ExportBilling(r.Context(), visitID)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="visit-%s-billing.xlsx"`, visitID))
	w.WriteHeader(http.StatusOK)
	w.Write(workbook)
}
