package database

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("not found")

// ReferenceReader provides read-only access to the reference corpus
type ReferenceReader interface {
	// Get retrieves a reference by id, returns nil if not found
	Get(ctx context.Context, id string) (*StoredReference, error)
	// Count returns the total number of references stored
	Count(ctx context.Context) (int, error)
	// List returns all references ordered by id
	List(ctx context.Context) ([]StoredReference, error)
	// FindNearest returns up to limit references ordered by ascending cosine
	// distance to the embedding, together with the distances
	FindNearest(ctx context.Context, embedding []float32, limit int) ([]StoredReference, []float64, error)
}

// ReferenceWriter provides write access to the reference corpus
type ReferenceWriter interface {
	ReferenceReader

	// Save stores a reference (upsert by id)
	Save(ctx context.Context, ref StoredReference) error
	// SaveBatch stores multiple references in a single transaction
	SaveBatch(ctx context.Context, refs []StoredReference) error
	// Delete removes a reference
	Delete(ctx context.Context, id string) error
}

// ReportReader provides read-only access to assembled reports
type ReportReader interface {
	// GetReport retrieves a report by id, returns ErrNotFound if missing
	GetReport(ctx context.Context, id string) (*StoredReport, error)
}

// ReportWriter provides write access to assembled reports
type ReportWriter interface {
	ReportReader

	// SaveReport inserts a new report. Existing reports are never overwritten.
	SaveReport(ctx context.Context, report *StoredReport) error
	// IncrementAccess bumps the access counter and returns the updated report,
	// or ErrNotFound if missing
	IncrementAccess(ctx context.Context, id string) (*StoredReport, error)
}

// HNSWRebuilder is an interface for repositories that support HNSW index rebuilding
type HNSWRebuilder interface {
	// RebuildHNSW rebuilds the in-memory HNSW index
	RebuildHNSW(ctx context.Context) error
	// HNSWCount returns the number of items in the HNSW index
	HNSWCount() int
	// IsHNSWEnabled returns whether HNSW is enabled
	IsHNSWEnabled() bool
	// SaveHNSWIndex saves the current index to disk (if path configured)
	SaveHNSWIndex() error
}
