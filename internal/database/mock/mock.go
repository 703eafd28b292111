// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/kozaktomas/phenotype-matcher/internal/database"
)

// MockReferenceStore is an in-memory implementation of database.ReferenceWriter.
// FindNearest scans every reference with exact cosine distance.
type MockReferenceStore struct {
	mu         sync.RWMutex
	references map[string]*database.StoredReference

	// Error injection
	GetError         error
	CountError       error
	ListError        error
	FindNearestError error
	SaveError        error
	DeleteError      error

	// FindNearestCalls counts FindNearest invocations
	FindNearestCalls int
}

// NewMockReferenceStore creates a new mock reference store
func NewMockReferenceStore() *MockReferenceStore {
	return &MockReferenceStore{
		references: make(map[string]*database.StoredReference),
	}
}

// AddReference adds a reference to the mock store
func (m *MockReferenceStore) AddReference(ref database.StoredReference) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.references[ref.ID] = &ref
}

// Get retrieves a reference by id
func (m *MockReferenceStore) Get(ctx context.Context, id string) (*database.StoredReference, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if ref, ok := m.references[id]; ok {
		c := *ref
		return &c, nil
	}
	return nil, nil
}

// Count returns the number of references
func (m *MockReferenceStore) Count(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.references), nil
}

// List returns all references ordered by id
func (m *MockReferenceStore) List(ctx context.Context) ([]database.StoredReference, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	refs := make([]database.StoredReference, 0, len(m.references))
	for _, ref := range m.references {
		refs = append(refs, *ref)
	}
	slices.SortFunc(refs, func(a, b database.StoredReference) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return refs, nil
}

// FindNearest returns the closest references by brute-force cosine distance
func (m *MockReferenceStore) FindNearest(ctx context.Context, embedding []float32, limit int) ([]database.StoredReference, []float64, error) {
	m.mu.Lock()
	m.FindNearestCalls++
	m.mu.Unlock()

	if m.FindNearestError != nil {
		return nil, nil, m.FindNearestError
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	type result struct {
		ref  database.StoredReference
		dist float64
	}
	var results []result
	for _, ref := range m.references {
		if len(ref.Embedding) == 0 {
			continue
		}
		results = append(results, result{ref: *ref, dist: database.CosineDistance(embedding, ref.Embedding)})
	}

	slices.SortFunc(results, func(a, b result) int {
		if c := cmp.Compare(a.dist, b.dist); c != 0 {
			return c
		}
		return cmp.Compare(a.ref.ID, b.ref.ID)
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	refs := make([]database.StoredReference, len(results))
	distances := make([]float64, len(results))
	for i, r := range results {
		refs[i] = r.ref
		distances[i] = r.dist
	}
	return refs, distances, nil
}

// Save stores a reference
func (m *MockReferenceStore) Save(ctx context.Context, ref database.StoredReference) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.AddReference(ref)
	return nil
}

// SaveBatch stores multiple references
func (m *MockReferenceStore) SaveBatch(ctx context.Context, refs []database.StoredReference) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	for _, ref := range refs {
		m.AddReference(ref)
	}
	return nil
}

// Delete removes a reference
func (m *MockReferenceStore) Delete(ctx context.Context, id string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.references, id)
	return nil
}

// MockReportStore is an in-memory implementation of database.ReportWriter
type MockReportStore struct {
	mu      sync.RWMutex
	reports map[string]*database.StoredReport

	// Error injection
	SaveError error
	GetError  error
}

// NewMockReportStore creates a new mock report store
func NewMockReportStore() *MockReportStore {
	return &MockReportStore{
		reports: make(map[string]*database.StoredReport),
	}
}

// SaveReport inserts a report, failing if the id already exists
func (m *MockReportStore) SaveReport(ctx context.Context, report *database.StoredReport) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.reports[report.ID]; exists {
		return fmt.Errorf("report %s already exists", report.ID)
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now()
	}
	c := *report
	m.reports[report.ID] = &c
	return nil
}

// GetReport retrieves a report by id
func (m *MockReportStore) GetReport(ctx context.Context, id string) (*database.StoredReport, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	report, ok := m.reports[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	c := *report
	return &c, nil
}

// IncrementAccess bumps the access counter of a report
func (m *MockReportStore) IncrementAccess(ctx context.Context, id string) (*database.StoredReport, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	report, ok := m.reports[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	now := time.Now()
	report.AccessCount++
	report.LastAccessedAt = &now
	c := *report
	return &c, nil
}

// Len returns the number of stored reports
func (m *MockReportStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.reports)
}

var (
	_ database.ReferenceWriter = (*MockReferenceStore)(nil)
	_ database.ReportWriter    = (*MockReportStore)(nil)
)
