// Package pipeline runs a hybrid analysis: the embedding, measurement and
// vision signals are gathered concurrently and fused into one ranked result.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kozaktomas/phenotype-matcher/internal/anthropometry"
	"github.com/kozaktomas/phenotype-matcher/internal/constants"
	"github.com/kozaktomas/phenotype-matcher/internal/database"
	"github.com/kozaktomas/phenotype-matcher/internal/embedding"
	"github.com/kozaktomas/phenotype-matcher/internal/fusion"
	"github.com/kozaktomas/phenotype-matcher/internal/phenotype"
	"github.com/kozaktomas/phenotype-matcher/internal/report"
	"github.com/kozaktomas/phenotype-matcher/internal/retrieval"
	"github.com/kozaktomas/phenotype-matcher/internal/storage"
	"github.com/kozaktomas/phenotype-matcher/internal/vision"
	"go.uber.org/zap"
)

// Embedder computes the mandatory feature vector
type Embedder interface {
	Health(ctx context.Context) error
	Embed(ctx context.Context, imageData []byte) (*embedding.Result, error)
}

// Measurer extracts facial ratios
type Measurer interface {
	Measure(ctx context.Context, imageData []byte) (*anthropometry.Profile, error)
}

// Classifier returns a vision classification or nil when unavailable
type Classifier interface {
	Enabled() bool
	Classify(ctx context.Context, imageData []byte) *vision.Classification
}

// ImageRef points at a stored upload
type ImageRef struct {
	Key string
}

// Deps are the collaborators of a pipeline. Measurer and Classifier are
// optional; Assembler is only needed by Analyze and Submit.
type Deps struct {
	Images     storage.Store
	Embedder   Embedder
	Measurer   Measurer
	Classifier Classifier
	Retriever  *retrieval.Retriever
	Comparator *anthropometry.Comparator
	Engine     *fusion.Engine
	Assembler  *report.Assembler
}

// Options tune a pipeline
type Options struct {
	HealthCheck        bool
	Candidates         int
	MeasurementTimeout time.Duration
}

// Pipeline holds no per-request state and is safe for concurrent use
type Pipeline struct {
	deps   Deps
	opts   Options
	logger *zap.Logger
}

func New(deps Deps, opts Options, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Candidates <= 0 {
		opts.Candidates = constants.DefaultCandidates
	}
	if opts.MeasurementTimeout <= 0 {
		opts.MeasurementTimeout = constants.DefaultMeasurementTimeout
	}
	if deps.Comparator == nil {
		deps.Comparator = anthropometry.NewComparator(anthropometry.DefaultBuckets)
	}
	return &Pipeline{
		deps:   deps,
		opts:   opts,
		logger: logger.With(zap.String("component", "pipeline")),
	}
}

// Analysis is a persisted analysis
type Analysis struct {
	Result *fusion.AnalysisResult
	Report *database.StoredReport
}

// Run analyzes a stored upload. It either returns a result with at least one
// match or a *Error; never both.
func (p *Pipeline) Run(ctx context.Context, ref ImageRef) (*fusion.AnalysisResult, error) {
	img, err := p.load(ctx, ref)
	if err != nil {
		return nil, err
	}
	return p.run(ctx, img)
}

// Analyze runs the analysis and stores its report.
func (p *Pipeline) Analyze(ctx context.Context, ref ImageRef) (*Analysis, error) {
	img, err := p.load(ctx, ref)
	if err != nil {
		return nil, err
	}
	return p.analyze(ctx, ref.Key, img)
}

// Submit stores a new upload and analyzes it.
func (p *Pipeline) Submit(ctx context.Context, imageData []byte) (*Analysis, error) {
	if len(imageData) == 0 {
		return nil, fail(CodeImageUnavailable, errors.New("empty image"))
	}
	key, err := p.deps.Images.Put(ctx, imageData)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fail(CodeCancelled, ctx.Err())
		}
		return nil, fail(CodeUploadFailed, err)
	}
	p.logger.Debug("upload stored", zap.String("key", key), zap.Int("bytes", len(imageData)))
	return p.analyze(ctx, key, imageData)
}

func (p *Pipeline) analyze(ctx context.Context, key string, img []byte) (*Analysis, error) {
	result, err := p.run(ctx, img)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(img)
	rep, err := p.deps.Assembler.Assemble(ctx, result, report.Source{
		UploadKey:   key,
		ImageSHA256: hex.EncodeToString(sum[:]),
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, fail(CodeCancelled, ctx.Err())
		}
		return nil, fail(CodeDatastoreUnavailable, err)
	}
	return &Analysis{Result: result, Report: rep}, nil
}

func (p *Pipeline) load(ctx context.Context, ref ImageRef) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail(CodeCancelled, err)
	}
	img, err := p.deps.Images.Get(ctx, ref.Key)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fail(CodeCancelled, ctx.Err())
		}
		return nil, fail(CodeImageUnavailable, err)
	}
	if len(img) == 0 {
		return nil, fail(CodeImageUnavailable, fmt.Errorf("upload %s is empty", ref.Key))
	}
	return img, nil
}

func (p *Pipeline) run(ctx context.Context, img []byte) (*fusion.AnalysisResult, error) {
	start := time.Now()

	if p.opts.HealthCheck {
		if err := p.deps.Embedder.Health(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, fail(CodeCancelled, ctx.Err())
			}
			return nil, fail(CodeEmbeddingUnavailable, err)
		}
	}

	measurementAttempted := p.deps.Measurer != nil
	visionAttempted := p.deps.Classifier != nil && p.deps.Classifier.Enabled()

	// Optional signals run alongside the embedding. Their goroutines are never
	// waited on after a fatal error; they finish on their own deadlines.
	var (
		wg             sync.WaitGroup
		profile        *anthropometry.Profile
		classification *vision.Classification
	)
	if measurementAttempted {
		wg.Add(1)
		go func() {
			defer wg.Done()
			profile = p.measure(ctx, img)
		}()
	}
	if visionAttempted {
		wg.Add(1)
		go func() {
			defer wg.Done()
			classification = p.deps.Classifier.Classify(ctx, img)
		}()
	}
	optionalDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(optionalDone)
	}()

	emb, err := p.deps.Embedder.Embed(ctx, img)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return nil, fail(CodeCancelled, ctx.Err())
		case errors.Is(err, embedding.ErrServiceUnavailable):
			return nil, fail(CodeEmbeddingUnavailable, err)
		default:
			return nil, fail(CodeEmbeddingFailed, err)
		}
	}

	candidates, err := p.deps.Retriever.Retrieve(ctx, emb.Embedding, p.opts.Candidates)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fail(CodeCancelled, ctx.Err())
		}
		return nil, fail(CodeDatastoreUnavailable, err)
	}

	select {
	case <-optionalDone:
	case <-ctx.Done():
		return nil, fail(CodeCancelled, ctx.Err())
	}

	entities := make([]phenotype.ReferenceEntity, len(candidates))
	embeddingMatches := make([]fusion.RawMatch, len(candidates))
	for i, c := range candidates {
		entities[i] = c.Entity
		embeddingMatches[i] = fusion.RawMatch{
			Source:   fusion.SignalEmbedding,
			EntityID: c.Entity.ID,
			Name:     c.Entity.Name,
			Score:    c.Similarity,
		}
	}

	result, err := p.deps.Engine.Fuse(fusion.Signals{
		Embedding:            embeddingMatches,
		Measurement:          p.deps.Comparator.RawMatches(profile, entities),
		Vision:               classification.Signal(),
		MeasurementAttempted: measurementAttempted,
		VisionAttempted:      visionAttempted,
	})
	if err != nil {
		switch {
		case errors.Is(err, fusion.ErrNoEmbeddingCandidates):
			return nil, fail(CodeNoEmbeddingCandidates, err)
		case errors.Is(err, fusion.ErrNoResolvableMatches):
			return nil, fail(CodeNoResolvableMatches, err)
		default:
			return nil, fail(CodeEmbeddingFailed, err)
		}
	}

	primary := result.Primary()
	p.logger.Info("analysis completed",
		zap.String("mode", string(result.Mode)),
		zap.String("primary", primary.Entity.ID),
		zap.Float64("score", primary.FusedScore),
		zap.Bool("degraded", result.Degraded),
		zap.Int("dropped", result.DroppedMatches),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}

type measureOutcome struct {
	profile *anthropometry.Profile
	err     error
}

// measure returns nil when the measurement signal is unavailable. The wait is
// bounded by MeasurementTimeout even if the Measurer ignores its context; a
// late answer is discarded.
func (p *Pipeline) measure(ctx context.Context, img []byte) *anthropometry.Profile {
	ctx, cancel := context.WithTimeout(ctx, p.opts.MeasurementTimeout)
	defer cancel()

	done := make(chan measureOutcome, 1)
	go func() {
		profile, err := p.deps.Measurer.Measure(ctx, img)
		done <- measureOutcome{profile: profile, err: err}
	}()

	var out measureOutcome
	select {
	case out = <-done:
	case <-ctx.Done():
		p.logger.Warn("measurement timed out",
			zap.Duration("timeout", p.opts.MeasurementTimeout),
			zap.Error(ctx.Err()))
		return nil
	}

	if out.err != nil {
		p.logger.Warn("measurement failed", zap.Error(out.err))
		return nil
	}
	if !out.profile.Available() {
		p.logger.Warn("measurement found no landmarks")
		return nil
	}
	return out.profile
}
