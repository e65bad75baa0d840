package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/caretrail/visit-pipeline/internal/application/services"
	"github.com/caretrail/visit-pipeline/internal/domain/entities"
	"github.com/caretrail/visit-pipeline/internal/domain/repositories"
)

// VisitHandler handles visit lifecycle HTTP requests
type VisitHandler struct {
	visitService    *services.VisitService
	pipelineService *services.PipelineService
}

// NewVisitHandler creates a new visit handler
func NewVisitHandler(visitService *services.VisitService, pipelineService *services.PipelineService) *VisitHandler {
	return &VisitHandler{
		visitService:    visitService,
		pipelineService: pipelineService,
	}
}

type createVisitRequest struct {
	ClientID       string    `json:"client_id"`
	CaregiverID    string    `json:"caregiver_id"`
	ScheduledStart time.Time `json:"scheduled_start"`
	ScheduledEnd   time.Time `json:"scheduled_end"`
}

// CreateVisit handles POST /api/visits
func (h *VisitHandler) CreateVisit(w http.ResponseWriter, r *http.Request) {
	var req createVisitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	visit, err := h.visitService.CreateVisit(r.Context(), &entities.Visit{
		ClientID:       req.ClientID,
		CaregiverID:    req.CaregiverID,
		ScheduledStart: req.ScheduledStart,
		ScheduledEnd:   req.ScheduledEnd,
	})
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, visit)
}

// GetVisit handles GET /api/visits/{id}
func (h *VisitHandler) GetVisit(w http.ResponseWriter, r *http.Request) {
	visitID := r.PathValue("id")
	if visitID == "" {
		respondWithError(w, http.StatusBadRequest, "visit ID is required")
		return
	}

	visit, err := h.visitService.GetVisit(r.Context(), visitID)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, visit)
}

// ListVisits handles GET /api/visits
func (h *VisitHandler) ListVisits(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := repositories.VisitFilter{
		ClientID:    query.Get("client_id"),
		CaregiverID: query.Get("caregiver_id"),
		Status:      entities.VisitStatus(query.Get("status")),
		Limit:       30,
		Offset:      0,
	}
	if limit, err := strconv.Atoi(query.Get("limit")); err == nil && limit > 0 && limit <= 100 {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(query.Get("offset")); err == nil && offset >= 0 {
		filter.Offset = offset
	}

	visits, err := h.visitService.ListVisits(r.Context(), filter)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"visits": visits,
		"count":  len(visits),
	})
}

// GetVisitStatus handles GET /api/visits/{id}/status
func (h *VisitHandler) GetVisitStatus(w http.ResponseWriter, r *http.Request) {
	visitID := r.PathValue("id")
	if visitID == "" {
		respondWithError(w, http.StatusBadRequest, "visit ID is required")
		return
	}

	view, err := h.visitService.GetVisitStatus(r.Context(), visitID)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, view)
}

type attachAudioRequest struct {
	AudioAssetKey string `json:"audio_asset_key"`
}

// AttachAudio handles POST /api/visits/{id}/audio. Attaching the recording
// kicks off the processing pipeline.
func (h *VisitHandler) AttachAudio(w http.ResponseWriter, r *http.Request) {
	visitID := r.PathValue("id")
	if visitID == "" {
		respondWithError(w, http.StatusBadRequest, "visit ID is required")
		return
	}

	var req attachAudioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	visit, err := h.pipelineService.StartPipeline(r.Context(), visitID, req.AudioAssetKey)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	h.visitService.InvalidateStatus(r.Context(), visitID)

	respondWithJSON(w, http.StatusAccepted, visit)
}

// RetriggerStage handles POST /api/visits/{id}/stages/{stage}/retrigger
func (h *VisitHandler) RetriggerStage(w http.ResponseWriter, r *http.Request) {
	visitID := r.PathValue("id")
	stage := r.PathValue("stage")
	if visitID == "" || stage == "" {
		respondWithError(w, http.StatusBadRequest, "visit ID and stage are required")
		return
	}

	if err := h.pipelineService.RetriggerStage(r.Context(), visitID, entities.Stage(stage)); err != nil {
		respondWithAppError(w, err)
		return
	}
	h.visitService.InvalidateStatus(r.Context(), visitID)

	respondWithJSON(w, http.StatusAccepted, map[string]string{
		"visit_id": visitID,
		"stage":    stage,
		"status":   "queued",
	})
}
