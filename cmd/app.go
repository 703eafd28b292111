package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/kozaktomas/phenotype-matcher/internal/anthropometry"
	"github.com/kozaktomas/phenotype-matcher/internal/config"
	"github.com/kozaktomas/phenotype-matcher/internal/database"
	"github.com/kozaktomas/phenotype-matcher/internal/database/postgres"
	"github.com/kozaktomas/phenotype-matcher/internal/embedding"
	"github.com/kozaktomas/phenotype-matcher/internal/fusion"
	"github.com/kozaktomas/phenotype-matcher/internal/narrative"
	"github.com/kozaktomas/phenotype-matcher/internal/phenotype"
	"github.com/kozaktomas/phenotype-matcher/internal/pipeline"
	"github.com/kozaktomas/phenotype-matcher/internal/report"
	"github.com/kozaktomas/phenotype-matcher/internal/retrieval"
	"github.com/kozaktomas/phenotype-matcher/internal/storage"
	"github.com/kozaktomas/phenotype-matcher/internal/vision"
	"go.uber.org/zap"
)

// datastore is the PostgreSQL pool with its repositories
type datastore struct {
	pool       *postgres.Pool
	references *postgres.ReferenceRepository
	reports    *postgres.ReportRepository
}

func openDatastore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*datastore, error) {
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}
	pool, err := postgres.Open(ctx, &cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	return &datastore{
		pool:       pool,
		references: postgres.NewReferenceRepository(pool, logger),
		reports:    postgres.NewReportRepository(pool),
	}, nil
}

func (d *datastore) Close() error {
	return d.pool.Close()
}

// app is the fully wired analysis service
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	store     *datastore
	index     *phenotype.Index
	embedder  *embedding.Client
	pipeline  *pipeline.Pipeline
	assembler *report.Assembler
	vision    vision.Provider
}

// referenceEntity converts a stored reference into a corpus entity.
func referenceEntity(ref database.StoredReference) phenotype.ReferenceEntity {
	return phenotype.ReferenceEntity{
		ID:          ref.ID,
		Name:        ref.Name,
		Description: ref.Description,
		Regions:     ref.Regions,
		Vector:      ref.Embedding,
		Archetype:   ref.Archetype,
	}
}

// loadIndex builds the reference index from the stored corpus.
func loadIndex(ctx context.Context, refs database.ReferenceReader) (*phenotype.Index, error) {
	stored, err := refs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load references: %w", err)
	}
	if len(stored) == 0 {
		return nil, errors.New("reference corpus is empty, run 'phenotype-matcher corpus import' first")
	}
	entities := make([]phenotype.ReferenceEntity, len(stored))
	for i, ref := range stored {
		entities[i] = referenceEntity(ref)
	}
	return phenotype.NewIndex(entities)
}

// newApp wires every collaborator of the pipeline from the configuration.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	store, err := openDatastore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a, err := wireApp(ctx, cfg, logger, store)
	if err != nil {
		store.Close()
		return nil, err
	}
	return a, nil
}

func wireApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, store *datastore) (*app, error) {
	index, err := loadIndex(ctx, store.references)
	if err != nil {
		return nil, err
	}

	if err := store.references.EnableHNSW(ctx, cfg.Database.HNSWIndexPath); err != nil {
		logger.Warn("failed to enable reference HNSW index, using PostgreSQL search", zap.Error(err))
	}

	images, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	visionProvider, err := vision.NewProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	generator, err := narrative.NewGenerator(ctx, cfg)
	if err != nil {
		return nil, err
	}

	embedder := embedding.NewClient(cfg.Embedding.URL, cfg.Embedding.Dim, cfg.Embedding.Timeout)
	assembler := report.NewAssembler(store.reports, generator, cfg.Narrative.Timeout, logger)

	deps := pipeline.Deps{
		Images:     images,
		Embedder:   embedder,
		Classifier: vision.NewAdapter(visionProvider, index.Names(), cfg.Vision.Timeout, logger),
		Retriever:  retrieval.NewRetriever(store.references, index, logger),
		Comparator: anthropometry.NewComparator(anthropometry.DefaultBuckets),
		Engine:     fusion.NewEngine(index, cfg.Matching.TopN, logger),
		Assembler:  assembler,
	}
	if cfg.Measurement.URL != "" {
		deps.Measurer = anthropometry.NewClient(cfg.Measurement.URL, cfg.Measurement.Timeout)
	}

	p := pipeline.New(deps, pipeline.Options{
		HealthCheck:        cfg.Embedding.HealthCheck,
		Candidates:         cfg.Matching.Candidates,
		MeasurementTimeout: cfg.Measurement.Timeout,
	}, logger)

	logger.Info("analysis pipeline ready",
		zap.Int("references", index.Len()),
		zap.Bool("hnsw", store.references.IsHNSWEnabled()),
		zap.Bool("measurement", deps.Measurer != nil),
		zap.String("vision", cfg.Vision.Provider),
		zap.String("narrative", cfg.Narrative.Provider),
		zap.String("storage", cfg.Storage.Backend),
	)

	return &app{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		index:     index,
		embedder:  embedder,
		pipeline:  p,
		assembler: assembler,
		vision:    visionProvider,
	}, nil
}

// Close persists the HNSW index and releases the database pool.
func (a *app) Close() {
	if err := a.store.references.SaveHNSWIndex(); err != nil {
		a.logger.Warn("failed to save reference HNSW index", zap.Error(err))
	}
	if a.vision != nil {
		usage := a.vision.GetUsage()
		if usage.InputTokens > 0 || usage.OutputTokens > 0 {
			a.logger.Info("vision usage",
				zap.String("provider", a.vision.Name()),
				zap.Int("input_tokens", usage.InputTokens),
				zap.Int("output_tokens", usage.OutputTokens),
				zap.Float64("cost_usd", usage.TotalCost),
			)
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close database", zap.Error(err))
	}
}

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
