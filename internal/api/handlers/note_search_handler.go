package handlers

import (
	"net/http"
	"strconv"

	"github.com/caretrail/visit-pipeline/internal/domain/providers"
)

// NoteSearchHandler handles operator full-text search over visit notes
type NoteSearchHandler struct {
	noteSearch providers.NoteSearchRepository
}

// NewNoteSearchHandler creates a new note search handler
func NewNoteSearchHandler(noteSearch providers.NoteSearchRepository) *NoteSearchHandler {
	return &NoteSearchHandler{noteSearch: noteSearch}
}

// SearchNotes handles GET /api/notes/search
func (h *NoteSearchHandler) SearchNotes(w http.ResponseWriter, r *http.Request) {
	if h.noteSearch == nil {
		respondWithError(w, http.StatusServiceUnavailable, "note search is not configured")
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		respondWithError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}

	limit := 20
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= 100 {
		limit = l
	}

	notes, err := h.noteSearch.SearchNotes(r.Context(), query, limit)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"notes": notes,
		"count": len(notes),
	})
}
