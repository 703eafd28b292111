package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/kozaktomas/phenotype-matcher/internal/constants"
	"github.com/kozaktomas/phenotype-matcher/internal/pipeline"
	"github.com/kozaktomas/phenotype-matcher/internal/report"
	"go.uber.org/zap"
)

// Analyzer stores an upload and analyzes it
type Analyzer interface {
	Submit(ctx context.Context, imageData []byte) (*pipeline.Analysis, error)
}

// AnalysesHandler handles image analysis endpoints.
type AnalysesHandler struct {
	analyzer Analyzer
	logger   *zap.Logger
}

// NewAnalysesHandler creates a new analyses handler.
func NewAnalysesHandler(analyzer Analyzer, logger *zap.Logger) *AnalysesHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalysesHandler{analyzer: analyzer, logger: logger}
}

// readUpload returns the bytes of the "image" form file, or "file" for
// clients of the embedding service API.
func readUpload(w http.ResponseWriter, r *http.Request) ([]byte, int, string) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize+1<<20)
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		if errors.As(err, new(*http.MaxBytesError)) {
			return nil, http.StatusRequestEntityTooLarge, "image exceeds upload limit"
		}
		return nil, http.StatusBadRequest, "failed to parse multipart form"
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		file, header, err = r.FormFile("file")
	}
	if err != nil {
		return nil, http.StatusBadRequest, "image file is required"
	}
	defer file.Close()

	if header.Size > constants.MaxUploadSize {
		return nil, http.StatusRequestEntityTooLarge, "image exceeds upload limit"
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, http.StatusBadRequest, "failed to read image"
	}
	if len(data) == 0 {
		return nil, http.StatusBadRequest, "image file is empty"
	}
	return data, 0, ""
}

// Create handles POST /api/v1/analyses.
func (h *AnalysesHandler) Create(w http.ResponseWriter, r *http.Request) {
	data, status, message := readUpload(w, r)
	if status != 0 {
		respondError(w, status, message)
		return
	}

	analysis, err := h.analyzer.Submit(r.Context(), data)
	if err != nil {
		h.logger.Warn("analysis failed",
			zap.String("code", string(pipeline.CodeOf(err))),
			zap.Error(err),
		)
		respondPipelineError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, report.NewDocument(analysis.Report))
}
