package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/caretrail/visit-pipeline/internal/application/services"
	"github.com/caretrail/visit-pipeline/internal/domain/repositories"
)

// ReviewHandler handles transcript, billing, and note review HTTP requests
type ReviewHandler struct {
	reviewService  *services.ReviewService
	transcriptRepo repositories.TranscriptRepository
	billingRepo    repositories.BillingRepository
	noteRepo       repositories.NoteRepository
	contractRepo   repositories.ContractRepository
}

// NewReviewHandler creates a new review handler
func NewReviewHandler(
	reviewService *services.ReviewService,
	transcriptRepo repositories.TranscriptRepository,
	billingRepo repositories.BillingRepository,
	noteRepo repositories.NoteRepository,
	contractRepo repositories.ContractRepository,
) *ReviewHandler {
	return &ReviewHandler{
		reviewService:  reviewService,
		transcriptRepo: transcriptRepo,
		billingRepo:    billingRepo,
		noteRepo:       noteRepo,
		contractRepo:   contractRepo,
	}
}

// GetTranscript handles GET /api/visits/{id}/transcript
func (h *ReviewHandler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	visitID := r.PathValue("id")
	if visitID == "" {
		respondWithError(w, http.StatusBadRequest, "visit ID is required")
		return
	}

	segments, err := h.transcriptRepo.ListSegments(r.Context(), visitID)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"segments": segments,
		"count":    len(segments),
	})
}

// GetBlocks handles GET /api/visits/{id}/blocks
func (h *ReviewHandler) GetBlocks(w http.ResponseWriter, r *http.Request) {
	visitID := r.PathValue("id")
	if visitID == "" {
		respondWithError(w, http.StatusBadRequest, "visit ID is required")
		return
	}

	blocks, err := h.billingRepo.ListBlocks(r.Context(), visitID)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"blocks":        blocks,
		"count":         len(blocks),
		"total_minutes": services.TotalMinutes(blocks),
	})
}

type adjustBlockRequest struct {
	Minutes int    `json:"minutes"`
	Reason  string `json:"reason"`
}

// AdjustBlock handles POST /api/blocks/{id}/adjust
func (h *ReviewHandler) AdjustBlock(w http.ResponseWriter, r *http.Request) {
	blockID := r.PathValue("id")
	if blockID == "" {
		respondWithError(w, http.StatusBadRequest, "block ID is required")
		return
	}

	var req adjustBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	block, err := h.reviewService.AdjustBlock(r.Context(), blockID, req.Minutes, req.Reason)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, block)
}

// GetNote handles GET /api/visits/{id}/note
func (h *ReviewHandler) GetNote(w http.ResponseWriter, r *http.Request) {
	visitID := r.PathValue("id")
	if visitID == "" {
		respondWithError(w, http.StatusBadRequest, "visit ID is required")
		return
	}

	note, err := h.noteRepo.GetByVisitID(r.Context(), visitID)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, note)
}

type approveNoteRequest struct {
	ApprovedBy string `json:"approved_by"`
}

// ApproveNote handles POST /api/visits/{id}/note/approve
func (h *ReviewHandler) ApproveNote(w http.ResponseWriter, r *http.Request) {
	visitID := r.PathValue("id")
	if visitID == "" {
		respondWithError(w, http.StatusBadRequest, "visit ID is required")
		return
	}

	var req approveNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	note, err := h.reviewService.ApproveNote(r.Context(), visitID, req.ApprovedBy)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, note)
}

// GetContract handles GET /api/visits/{id}/contract
func (h *ReviewHandler) GetContract(w http.ResponseWriter, r *http.Request) {
	visitID := r.PathValue("id")
	if visitID == "" {
		respondWithError(w, http.StatusBadRequest, "visit ID is required")
		return
	}

	contract, err := h.contractRepo.GetByVisitID(r.Context(), visitID)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, contract)
}
