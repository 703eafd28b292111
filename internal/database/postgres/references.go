package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kozaktomas/phenotype-matcher/internal/database"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
)

const referenceColumns = `id, name, description, regions, embedding, archetype, model, created_at, updated_at`

// ReferenceRepository provides PostgreSQL-backed reference storage with an
// optional in-memory HNSW index for nearest-neighbour search.
type ReferenceRepository struct {
	pool      *Pool
	logger    *zap.Logger
	hnswIndex *database.ReferenceIndex
	hnswPath  string // Path to persist the HNSW index (optional)
	hnswMu    sync.RWMutex
}

// NewReferenceRepository creates a new PostgreSQL reference repository
func NewReferenceRepository(pool *Pool, logger *zap.Logger) *ReferenceRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReferenceRepository{
		pool:   pool,
		logger: logger.With(zap.String("component", "references")),
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReference(row rowScanner, extra ...any) (database.StoredReference, error) {
	var ref database.StoredReference
	var vec pgvector.Vector
	var archetype []byte

	dest := []any{
		&ref.ID,
		&ref.Name,
		&ref.Description,
		pq.Array(&ref.Regions),
		&vec,
		&archetype,
		&ref.Model,
		&ref.CreatedAt,
		&ref.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return ref, err
	}

	ref.Embedding = vec.Slice()
	if len(archetype) > 0 {
		if err := json.Unmarshal(archetype, &ref.Archetype); err != nil {
			return ref, fmt.Errorf("decode archetype of %s: %w", ref.ID, err)
		}
	}
	return ref, nil
}

// Get retrieves a reference by id, returns nil if not found
func (r *ReferenceRepository) Get(ctx context.Context, id string) (*database.StoredReference, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+referenceColumns+` FROM reference_entities WHERE id = $1`, id)
	ref, err := scanReference(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query reference: %w", err)
	}
	return &ref, nil
}

// Count returns the total number of references stored
func (r *ReferenceRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM reference_entities").Scan(&count); err != nil {
		return 0, fmt.Errorf("count references: %w", err)
	}
	return count, nil
}

// List returns all references ordered by id
func (r *ReferenceRepository) List(ctx context.Context) ([]database.StoredReference, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+referenceColumns+` FROM reference_entities ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query references: %w", err)
	}
	defer rows.Close()

	var refs []database.StoredReference
	for rows.Next() {
		ref, err := scanReference(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reference: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate references: %w", err)
	}
	return refs, nil
}

// FindNearest returns the references closest to the embedding by cosine distance.
// Uses the in-memory HNSW index if enabled, otherwise falls back to PostgreSQL.
func (r *ReferenceRepository) FindNearest(ctx context.Context, embedding []float32, limit int) ([]database.StoredReference, []float64, error) {
	r.hnswMu.RLock()
	index := r.hnswIndex
	r.hnswMu.RUnlock()

	if index != nil {
		refs, distances, err := index.Search(embedding, limit)
		if err == nil {
			return refs, distances, nil
		}
		r.logger.Warn("HNSW search failed, falling back to PostgreSQL", zap.Error(err))
	}

	return r.findNearestPostgres(ctx, embedding, limit)
}

// findNearestPostgres uses pgvector for similarity search with ef_search optimization
func (r *ReferenceRepository) findNearestPostgres(ctx context.Context, embedding []float32, limit int) ([]database.StoredReference, []float64, error) {
	tx, err := r.pool.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Set ef_search to match the in-memory HNSW configuration
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", database.HNSWEfSearch)); err != nil {
		return nil, nil, fmt.Errorf("set ef_search: %w", err)
	}

	query := `
		SELECT ` + referenceColumns + `, embedding <=> $1::vector AS distance
		FROM reference_entities
		ORDER BY embedding <=> $1::vector
		LIMIT $2
	`

	rows, err := tx.QueryContext(ctx, query, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, nil, fmt.Errorf("query nearest references: %w", err)
	}
	defer rows.Close()

	var refs []database.StoredReference
	var distances []float64
	for rows.Next() {
		var dist float64
		ref, err := scanReference(rows, &dist)
		if err != nil {
			return nil, nil, fmt.Errorf("scan reference: %w", err)
		}
		refs = append(refs, ref)
		distances = append(distances, dist)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate references: %w", err)
	}
	return refs, distances, nil
}

const upsertReference = `
	INSERT INTO reference_entities (id, name, description, regions, embedding, archetype, model)
	VALUES ($1, $2, $3, $4, $5::vector, $6, $7)
	ON CONFLICT (id) DO UPDATE SET
		name = EXCLUDED.name,
		description = EXCLUDED.description,
		regions = EXCLUDED.regions,
		embedding = EXCLUDED.embedding,
		archetype = EXCLUDED.archetype,
		model = EXCLUDED.model,
		updated_at = NOW()
`

func referenceArgs(ref database.StoredReference) ([]any, error) {
	archetype := ref.Archetype
	if archetype == nil {
		archetype = map[string]float64{}
	}
	archetypeJSON, err := json.Marshal(archetype)
	if err != nil {
		return nil, fmt.Errorf("encode archetype of %s: %w", ref.ID, err)
	}
	regions := ref.Regions
	if regions == nil {
		regions = []string{}
	}
	return []any{
		ref.ID,
		ref.Name,
		ref.Description,
		pq.Array(regions),
		pgvector.NewVector(ref.Embedding),
		archetypeJSON,
		ref.Model,
	}, nil
}

// Save stores a reference (upsert)
func (r *ReferenceRepository) Save(ctx context.Context, ref database.StoredReference) error {
	args, err := referenceArgs(ref)
	if err != nil {
		return err
	}
	if _, err := r.pool.Exec(ctx, upsertReference, args...); err != nil {
		return fmt.Errorf("save reference: %w", err)
	}
	return nil
}

// SaveBatch saves multiple references in a single transaction
func (r *ReferenceRepository) SaveBatch(ctx context.Context, refs []database.StoredReference) error {
	if len(refs) == 0 {
		return nil
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertReference)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, ref := range refs {
		args, err := referenceArgs(ref)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert reference %s: %w", ref.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Delete removes a reference
func (r *ReferenceRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, "DELETE FROM reference_entities WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete reference: %w", err)
	}
	return nil
}

// currentMetadata describes the table contents for index staleness checks
func (r *ReferenceRepository) currentMetadata(ctx context.Context) (database.ReferenceIndexMetadata, error) {
	var meta database.ReferenceIndexMetadata
	var latest time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(MAX(updated_at), 'epoch'::timestamptz), COALESCE(MAX(vector_dims(embedding)), 0)
		FROM reference_entities
	`).Scan(&meta.ReferenceCount, &latest, &meta.Dim)
	if err != nil {
		return meta, fmt.Errorf("query reference metadata: %w", err)
	}
	meta.LatestUpdate = latest.UnixNano()
	return meta, nil
}

// tryLoadIndex attempts to load a fresh HNSW index from disk.
func (r *ReferenceRepository) tryLoadIndex(indexPath string, current database.ReferenceIndexMetadata) *database.ReferenceIndex {
	cached, err := database.LoadReferenceIndexMetadata(indexPath)
	if err != nil {
		r.logger.Info("reference index metadata unavailable, rebuilding", zap.Error(err))
		return nil
	}
	if *cached != current {
		r.logger.Info("reference index is stale, rebuilding",
			zap.Int64("db_count", current.ReferenceCount),
			zap.Int64("cached_count", cached.ReferenceCount))
		return nil
	}

	index := database.NewReferenceIndex()
	if err := index.Load(indexPath); err != nil {
		r.logger.Warn("failed to load reference index, rebuilding", zap.Error(err))
		return nil
	}
	if index.IsEmpty() {
		return nil
	}
	return index
}

// EnableHNSW loads or builds the in-memory HNSW index. If indexPath is set the
// index is loaded from disk when fresh and saved after a rebuild.
func (r *ReferenceRepository) EnableHNSW(ctx context.Context, indexPath string) error {
	r.hnswMu.Lock()
	r.hnswPath = indexPath
	r.hnswMu.Unlock()

	current, err := r.currentMetadata(ctx)
	if err != nil {
		return err
	}

	if indexPath != "" {
		if index := r.tryLoadIndex(indexPath, current); index != nil {
			r.hnswMu.Lock()
			r.hnswIndex = index
			r.hnswMu.Unlock()
			r.logger.Info("reference index loaded from disk", zap.Int("references", index.Count()))
			return nil
		}
	}

	return r.rebuild(ctx, current)
}

// RebuildHNSW rebuilds the index from the database and persists it if a path is configured
func (r *ReferenceRepository) RebuildHNSW(ctx context.Context) error {
	current, err := r.currentMetadata(ctx)
	if err != nil {
		return err
	}
	return r.rebuild(ctx, current)
}

func (r *ReferenceRepository) rebuild(ctx context.Context, current database.ReferenceIndexMetadata) error {
	refs, err := r.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load references: %w", err)
	}

	index := database.NewReferenceIndex()
	if err := index.Build(refs); err != nil {
		return fmt.Errorf("failed to build HNSW reference index: %w", err)
	}

	r.hnswMu.Lock()
	r.hnswIndex = index
	path := r.hnswPath
	r.hnswMu.Unlock()

	if path != "" {
		if err := index.Save(path, current); err != nil {
			r.logger.Warn("failed to save reference index", zap.String("path", path), zap.Error(err))
		}
	}
	r.logger.Info("reference index built", zap.Int("references", index.Count()))
	return nil
}

// DisableHNSW disables the in-memory HNSW index, falling back to PostgreSQL queries
func (r *ReferenceRepository) DisableHNSW() {
	r.hnswMu.Lock()
	defer r.hnswMu.Unlock()
	r.hnswIndex = nil
}

// IsHNSWEnabled returns whether the in-memory HNSW index is enabled
func (r *ReferenceRepository) IsHNSWEnabled() bool {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	return r.hnswIndex != nil
}

// HNSWCount returns the number of references in the HNSW index
func (r *ReferenceRepository) HNSWCount() int {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	if r.hnswIndex == nil {
		return 0
	}
	return r.hnswIndex.Count()
}

// SaveHNSWIndex saves the current index to disk (if path configured)
func (r *ReferenceRepository) SaveHNSWIndex() error {
	r.hnswMu.RLock()
	index := r.hnswIndex
	path := r.hnswPath
	r.hnswMu.RUnlock()

	if index == nil || path == "" {
		return nil
	}

	current, err := r.currentMetadata(context.Background())
	if err != nil {
		return err
	}
	return index.Save(path, current)
}

var (
	_ database.ReferenceWriter = (*ReferenceRepository)(nil)
	_ database.HNSWRebuilder   = (*ReferenceRepository)(nil)
)
