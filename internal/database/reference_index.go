package database

import (
	"cmp"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/coder/hnsw"
)

// ErrIndexNotInitialized is returned when searching an index with no graph
var ErrIndexNotInitialized = errors.New("index not initialized")

// ReferenceIndex wraps an HNSW graph over reference embeddings keyed by
// reference id. Search results are re-ranked by exact cosine distance.
type ReferenceIndex struct {
	graph    *hnsw.Graph[string]
	idToRef  map[string]*StoredReference
	mu       sync.RWMutex
	basePath string
}

// ReferenceIndexMetadata stores metadata for freshness checking
type ReferenceIndexMetadata struct {
	ReferenceCount int64 `json:"reference_count"`
	LatestUpdate   int64 `json:"latest_update"` // unix nanos of the newest updated_at
	Dim            int   `json:"dim"`
}

// NewReferenceIndex creates a new empty reference index
func NewReferenceIndex() *ReferenceIndex {
	return &ReferenceIndex{
		idToRef: make(map[string]*StoredReference),
	}
}

func newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors)
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.CosineDistance
	return g
}

// Build replaces the index contents with the given references. References
// without an embedding are skipped.
func (h *ReferenceIndex) Build(refs []StoredReference) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.idToRef = make(map[string]*StoredReference, len(refs))
	if len(refs) == 0 {
		h.graph = nil
		return nil
	}

	dim := 0
	g := newGraph()
	for i := range refs {
		ref := &refs[i]
		if len(ref.Embedding) == 0 {
			continue
		}
		if dim == 0 {
			dim = len(ref.Embedding)
		} else if len(ref.Embedding) != dim {
			return fmt.Errorf("reference %s has dimension %d, expected %d", ref.ID, len(ref.Embedding), dim)
		}
		g.Add(hnsw.MakeNode(ref.ID, ref.Embedding))
		h.idToRef[ref.ID] = ref
	}

	if len(h.idToRef) == 0 {
		h.graph = nil
		return nil
	}
	h.graph = g
	return nil
}

// Search finds the k nearest references to the query, ordered by ascending
// cosine distance with ties broken by id.
func (h *ReferenceIndex) Search(query []float32, k int) ([]StoredReference, []float64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		return nil, nil, ErrIndexNotInitialized
	}
	if k <= 0 {
		return nil, nil, nil
	}

	searchK := max(k*HNSWSearchMultiplier, HNSWMinSearch)
	neighbors := h.graph.Search(query, searchK)

	type scored struct {
		ref  *StoredReference
		dist float64
	}
	results := make([]scored, 0, len(neighbors))
	for _, n := range neighbors {
		ref, ok := h.idToRef[n.Key]
		if !ok {
			continue
		}
		results = append(results, scored{ref: ref, dist: CosineDistance(query, ref.Embedding)})
	}

	slices.SortFunc(results, func(a, b scored) int {
		if c := cmp.Compare(a.dist, b.dist); c != 0 {
			return c
		}
		return cmp.Compare(a.ref.ID, b.ref.ID)
	})
	if len(results) > k {
		results = results[:k]
	}

	refs := make([]StoredReference, len(results))
	distances := make([]float64, len(results))
	for i, r := range results {
		refs[i] = *r.ref
		distances[i] = r.dist
	}
	return refs, distances, nil
}

// Get returns the reference with the given id, nil if absent
func (h *ReferenceIndex) Get(id string) *StoredReference {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.idToRef[id]
}

// Count returns the number of indexed references
func (h *ReferenceIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.idToRef)
}

// IsEmpty returns true if the index has no graph data loaded.
func (h *ReferenceIndex) IsEmpty() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.graph == nil
}

// LoadReferenceIndexMetadata loads just the metadata file for staleness checking
func LoadReferenceIndexMetadata(basePath string) (*ReferenceIndexMetadata, error) {
	data, err := os.ReadFile(basePath + ".meta")
	if err != nil {
		return nil, err
	}
	var meta ReferenceIndexMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Save persists the graph, the metadata and the reference records under basePath.
func (h *ReferenceIndex) Save(basePath string, metadata ReferenceIndexMetadata) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if basePath == "" {
		return nil
	}

	if h.graph == nil {
		// Remove existing files if index is empty
		os.Remove(basePath)
		os.Remove(basePath + ".meta")
		os.Remove(basePath + ".refs")
		return nil
	}

	f, err := os.Create(basePath)
	if err != nil {
		return fmt.Errorf("failed to create HNSW reference index file: %w", err)
	}
	if err := h.graph.Export(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to export HNSW graph: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close HNSW reference index file: %w", err)
	}

	metaData, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(basePath+".meta", metaData, 0644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	refFile, err := os.Create(basePath + ".refs")
	if err != nil {
		return fmt.Errorf("failed to create references file: %w", err)
	}
	defer refFile.Close()

	refs := make([]StoredReference, 0, len(h.idToRef))
	for _, ref := range h.idToRef {
		refs = append(refs, *ref)
	}
	if err := gob.NewEncoder(refFile).Encode(refs); err != nil {
		return fmt.Errorf("failed to encode references: %w", err)
	}

	h.basePath = basePath
	return nil
}

// Load reads an index previously written by Save.
func (h *ReferenceIndex) Load(basePath string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := os.Stat(basePath); err != nil {
		return fmt.Errorf("index file not found: %s", basePath)
	}

	saved, err := hnsw.LoadSavedGraph[string](basePath)
	if err != nil {
		return fmt.Errorf("failed to load HNSW reference index: %w", err)
	}

	refFile, err := os.Open(basePath + ".refs")
	if err != nil {
		return fmt.Errorf("failed to open references file: %w", err)
	}
	defer refFile.Close()

	var refs []StoredReference
	if err := gob.NewDecoder(refFile).Decode(&refs); err != nil {
		return fmt.Errorf("failed to decode references: %w", err)
	}

	h.idToRef = make(map[string]*StoredReference, len(refs))
	for i := range refs {
		h.idToRef[refs[i].ID] = &refs[i]
	}
	h.graph = saved.Graph
	if h.graph != nil && h.graph.Len() == 0 {
		h.graph = nil
	}
	h.basePath = basePath
	return nil
}

// Path returns the base path the index was last saved to or loaded from
func (h *ReferenceIndex) Path() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.basePath
}
