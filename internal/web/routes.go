package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/phenotype-matcher/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	analysesHandler := handlers.NewAnalysesHandler(s.deps.Analyzer, s.logger)
	reportsHandler := handlers.NewReportsHandler(s.deps.Reports, s.logger)
	healthHandler := handlers.NewHealthHandler(s.deps.Embedding, s.deps.References)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.Get)

		r.Post("/analyses", analysesHandler.Create)
		r.Get("/reports/{id}", reportsHandler.Get)
	})

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"not found"}` + "\n"))
	})
}
