// Package retrieval implements the mandatory embedding signal: nearest-neighbour
// lookup of reference entities by feature vector.
package retrieval

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/kozaktomas/phenotype-matcher/internal/database"
	"github.com/kozaktomas/phenotype-matcher/internal/phenotype"
	"go.uber.org/zap"
)

// ErrEmptyVector is returned for a zero-length query vector
var ErrEmptyVector = errors.New("empty query vector")

// Candidate is a reference entity with its similarity to the query in [0,1]
type Candidate struct {
	Entity     phenotype.ReferenceEntity
	Similarity float64
}

// Retriever resolves vector search hits against the reference index
type Retriever struct {
	store  database.ReferenceReader
	index  *phenotype.Index
	logger *zap.Logger
}

// NewRetriever creates a retriever over the given store and reference index
func NewRetriever(store database.ReferenceReader, index *phenotype.Index, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		store:  store,
		index:  index,
		logger: logger.With(zap.String("component", "retrieval")),
	}
}

// Retrieve returns up to k candidates ordered by non-increasing similarity,
// ties broken by entity id. Fewer are returned when the corpus is smaller.
// Any store error is returned; the caller treats it as fatal.
func (r *Retriever) Retrieve(ctx context.Context, vector []float32, k int) ([]Candidate, error) {
	if len(vector) == 0 {
		return nil, ErrEmptyVector
	}
	if k <= 0 {
		return nil, nil
	}

	refs, distances, err := r.store.FindNearest(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("find nearest references: %w", err)
	}
	if len(refs) != len(distances) {
		return nil, fmt.Errorf("find nearest references: %d results with %d distances", len(refs), len(distances))
	}

	candidates := make([]Candidate, 0, len(refs))
	for i, ref := range refs {
		entity, ok := r.index.ByID(ref.ID)
		if !ok {
			r.logger.Debug("stored reference missing from index", zap.String("id", ref.ID))
			continue
		}
		candidates = append(candidates, Candidate{
			Entity:     entity,
			Similarity: database.SimilarityFromDistance(distances[i]),
		})
	}

	slices.SortStableFunc(candidates, func(a, b Candidate) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		return cmp.Compare(a.Entity.ID, b.Entity.ID)
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}
