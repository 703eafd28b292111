package pipeline

import (
	"errors"
	"fmt"
)

// Code classifies a failed analysis for callers and the HTTP layer
type Code string

const (
	CodeImageUnavailable      Code = "image_unavailable"
	CodeEmbeddingUnavailable  Code = "embedding_unavailable"
	CodeEmbeddingFailed       Code = "embedding_failed"
	CodeDatastoreUnavailable  Code = "datastore_unavailable"
	CodeNoEmbeddingCandidates Code = "no_embedding_candidates"
	CodeNoResolvableMatches   Code = "no_resolvable_matches"
	CodeCancelled             Code = "cancelled"
	CodeUploadFailed          Code = "upload_failed"
)

// Error is a fatal analysis failure. No partial result accompanies it.
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func fail(code Code, err error) *Error {
	return &Error{Code: code, Err: err}
}

// CodeOf returns the code of a pipeline error, or "" for any other error.
func CodeOf(err error) Code {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Code
	}
	return ""
}
