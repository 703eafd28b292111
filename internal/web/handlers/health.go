package handlers

import (
	"context"
	"net/http"
)

// HealthProber checks an upstream dependency
type HealthProber interface {
	Health(ctx context.Context) error
}

// ReferenceCounter reports the size of the reference corpus
type ReferenceCounter interface {
	Count(ctx context.Context) (int, error)
}

// HealthHandler reports service readiness.
type HealthHandler struct {
	embedding  HealthProber
	references ReferenceCounter
}

// NewHealthHandler creates a health handler. Either dependency may be nil.
func NewHealthHandler(embedding HealthProber, references ReferenceCounter) *HealthHandler {
	return &HealthHandler{embedding: embedding, references: references}
}

type healthResponse struct {
	Status     string `json:"status"`
	Embedding  string `json:"embedding,omitempty"`
	Datastore  string `json:"datastore,omitempty"`
	References int    `json:"references"`
}

// Get handles GET /api/v1/health. It answers 503 when a mandatory dependency
// is down, so load balancers stop routing analyses here.
func (h *HealthHandler) Get(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	status := http.StatusOK

	if h.embedding != nil {
		resp.Embedding = "ok"
		if err := h.embedding.Health(r.Context()); err != nil {
			resp.Embedding = "unavailable"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
	}

	if h.references != nil {
		resp.Datastore = "ok"
		n, err := h.references.Count(r.Context())
		switch {
		case err != nil:
			resp.Datastore = "unavailable"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		case n == 0:
			resp.Datastore = "empty"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
		resp.References = n
	}

	respondJSON(w, status, resp)
}
