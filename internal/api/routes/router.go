package routes

import (
	"net/http"

	"github.com/caretrail/visit-pipeline/internal/api/handlers"
	"github.com/caretrail/visit-pipeline/internal/api/middleware"
	"github.com/caretrail/visit-pipeline/internal/infrastructure/observability"
)

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	visitHandler      *handlers.VisitHandler
	reviewHandler     *handlers.ReviewHandler
	exportHandler     *handlers.ExportHandler
	noteSearchHandler *handlers.NoteSearchHandler

	metrics *observability.Metrics
}

// NewRouter creates a new router
func NewRouter(
	visitHandler *handlers.VisitHandler,
	reviewHandler *handlers.ReviewHandler,
	exportHandler *handlers.ExportHandler,
	noteSearchHandler *handlers.NoteSearchHandler,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		mux:               http.NewServeMux(),
		visitHandler:      visitHandler,
		reviewHandler:     reviewHandler,
		exportHandler:     exportHandler,
		noteSearchHandler: noteSearchHandler,
		metrics:           metrics,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	// Health check endpoint
	r.mux.HandleFunc("GET /health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			return
		}
	})

	// Visit endpoints
	r.mux.HandleFunc("POST /api/visits", r.visitHandler.CreateVisit)
	r.mux.HandleFunc("GET /api/visits", r.visitHandler.ListVisits)
	r.mux.HandleFunc("GET /api/visits/{id}", r.visitHandler.GetVisit)
	r.mux.HandleFunc("GET /api/visits/{id}/status", r.visitHandler.GetVisitStatus)
	r.mux.HandleFunc("POST /api/visits/{id}/audio", r.visitHandler.AttachAudio)
	r.mux.HandleFunc("POST /api/visits/{id}/stages/{stage}/retrigger", r.visitHandler.RetriggerStage)

	// Review endpoints
	r.mux.HandleFunc("GET /api/visits/{id}/transcript", r.reviewHandler.GetTranscript)
	r.mux.HandleFunc("GET /api/visits/{id}/blocks", r.reviewHandler.GetBlocks)
	r.mux.HandleFunc("POST /api/blocks/{id}/adjust", r.reviewHandler.AdjustBlock)
	r.mux.HandleFunc("GET /api/visits/{id}/note", r.reviewHandler.GetNote)
	r.mux.HandleFunc("POST /api/visits/{id}/note/approve", r.reviewHandler.ApproveNote)
	r.mux.HandleFunc("GET /api/visits/{id}/contract", r.reviewHandler.GetContract)

	// Export endpoint
	r.mux.HandleFunc("GET /api/visits/{id}/billing/export", r.exportHandler.ExportBilling)

	// Note search endpoint
	r.mux.HandleFunc("GET /api/notes/search", r.noteSearchHandler.SearchNotes)

	// Apply middleware chain
	var handler http.Handler = r.mux
	handler = middleware.ObservabilityMiddleware(r.metrics)(handler)
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.CORSMiddleware(handler)

	return handler
}
