package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/kozaktomas/phenotype-matcher/internal/pipeline"
)

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondPipelineError sends an error response carrying the failure code.
func respondPipelineError(w http.ResponseWriter, err error) {
	code := pipeline.CodeOf(err)
	status, message := statusForCode(code)
	respondJSON(w, status, map[string]string{"error": message, "code": string(code)})
}

// statusForCode maps a pipeline failure to an HTTP status and a client-safe
// message. Upstream error details are never exposed.
func statusForCode(code pipeline.Code) (int, string) {
	switch code {
	case pipeline.CodeImageUnavailable:
		return http.StatusBadRequest, "image is missing or unreadable"
	case pipeline.CodeNoEmbeddingCandidates, pipeline.CodeNoResolvableMatches:
		return http.StatusUnprocessableEntity, "no reference phenotype matched the image"
	case pipeline.CodeEmbeddingUnavailable:
		return http.StatusServiceUnavailable, "embedding service unavailable"
	case pipeline.CodeDatastoreUnavailable:
		return http.StatusServiceUnavailable, "datastore unavailable"
	case pipeline.CodeEmbeddingFailed:
		return http.StatusBadGateway, "embedding service failed"
	case pipeline.CodeCancelled:
		return http.StatusRequestTimeout, "request cancelled"
	default:
		return http.StatusInternalServerError, "analysis failed"
	}
}
