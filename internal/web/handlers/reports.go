package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kozaktomas/phenotype-matcher/internal/database"
	"github.com/kozaktomas/phenotype-matcher/internal/report"
	"go.uber.org/zap"
)

// ReportOpener returns a report and records the access
type ReportOpener interface {
	Open(ctx context.Context, id string) (*database.StoredReport, error)
}

// ReportsHandler handles report endpoints.
type ReportsHandler struct {
	reports ReportOpener
	logger  *zap.Logger
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(reports ReportOpener, logger *zap.Logger) *ReportsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportsHandler{reports: reports, logger: logger}
}

// Get handles GET /api/v1/reports/{id}. Every successful read increments the
// report's access count.
func (h *ReportsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		respondError(w, http.StatusBadRequest, "invalid report id")
		return
	}

	rep, err := h.reports.Open(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "report not found")
			return
		}
		h.logger.Error("failed to open report", zap.String("id", sanitizeForLog(id)), zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "datastore unavailable")
		return
	}

	respondJSON(w, http.StatusOK, report.NewDocument(rep))
}
