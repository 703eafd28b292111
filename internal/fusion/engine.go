package fusion

import (
	"cmp"
	"errors"
	"math"
	"slices"

	"github.com/kozaktomas/phenotype-matcher/internal/constants"
	"github.com/kozaktomas/phenotype-matcher/internal/phenotype"
	"go.uber.org/zap"
)

var (
	// ErrNoEmbeddingCandidates is returned when the mandatory signal produced nothing
	ErrNoEmbeddingCandidates = errors.New("no embedding candidates")
	// ErrNoResolvableMatches is returned when no embedding match resolves to a reference entity
	ErrNoResolvableMatches = errors.New("no resolvable matches")
)

// SelectMode picks the scoring rule for the available optional signals.
func SelectMode(hasMeasurement, hasVision bool) Mode {
	switch {
	case hasMeasurement && hasVision:
		return ModeFull
	case hasMeasurement:
		return ModeEmbeddingMeasurement
	case hasVision:
		return ModeEmbeddingVision
	default:
		return ModeEmbeddingOnly
	}
}

// TierFor buckets a fused score.
func TierFor(score float64) Tier {
	switch {
	case score > constants.HighConfidenceThreshold:
		return TierHigh
	case score > constants.MediumConfidenceThreshold:
		return TierMedium
	default:
		return TierLow
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return max(0, min(1, v))
}

// clampConfidence bounds a vision confidence to 0-100; NaN counts as 0.
func clampConfidence(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return max(0, min(100, v))
}

// Engine reduces the signals of one request to an AnalysisResult. It only reads
// the reference index and is safe for concurrent use.
type Engine struct {
	index  *phenotype.Index
	topN   int
	logger *zap.Logger
}

// NewEngine creates a fusion engine keeping at most topN matches.
func NewEngine(index *phenotype.Index, topN int, logger *zap.Logger) *Engine {
	if topN <= 0 {
		topN = constants.DefaultTopN
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		index:  index,
		topN:   topN,
		logger: logger.With(zap.String("component", "fusion")),
	}
}

// Fuse combines the signals. Embedding matches define the candidate set;
// measurement scores are blended with fixed weights where present, and vision
// matches are attached as metadata without touching the fused score.
func (e *Engine) Fuse(signals Signals) (*AnalysisResult, error) {
	if len(signals.Embedding) == 0 {
		return nil, ErrNoEmbeddingCandidates
	}

	dropped := 0
	drop := func(m RawMatch) {
		dropped++
		e.logger.Debug("dropping unresolvable match",
			zap.String("source", string(m.Source)),
			zap.String("entity_id", m.EntityID),
			zap.String("name", m.Name))
	}

	candidates := make(map[string]*FusedMatch, len(signals.Embedding))
	for _, m := range signals.Embedding {
		entity, ok := e.index.Resolve(m.EntityID, m.Name)
		if !ok {
			drop(m)
			continue
		}
		score := clamp01(m.Score)
		if existing, ok := candidates[entity.ID]; ok {
			existing.EmbeddingSimilarity = max(existing.EmbeddingSimilarity, score)
			continue
		}
		candidates[entity.ID] = &FusedMatch{Entity: entity, EmbeddingSimilarity: score}
	}
	if len(candidates) == 0 {
		return nil, ErrNoResolvableMatches
	}

	hasMeasurement := len(signals.Measurement) > 0
	if hasMeasurement {
		for _, m := range signals.Measurement {
			entity, ok := e.index.Resolve(m.EntityID, m.Name)
			if !ok {
				drop(m)
				continue
			}
			c, ok := candidates[entity.ID]
			if !ok {
				continue
			}
			score := clamp01(m.Score)
			c.MeasurementSimilarity = &score
		}
	}

	hasVision := signals.Vision != nil
	if hasVision {
		for _, m := range signals.Vision.Matches {
			entity, ok := e.index.MatchByName(m.Name)
			if !ok {
				drop(m)
				continue
			}
			c, ok := candidates[entity.ID]
			if !ok {
				e.logger.Debug("vision match is not an embedding candidate", zap.String("entity_id", entity.ID))
				continue
			}
			confidence := clampConfidence(m.Score)
			if c.VisionConfidence != nil && *c.VisionConfidence >= confidence {
				continue
			}
			c.VisionConfidence = &confidence
			c.Metadata = MatchMetadata{
				VisionLabel: m.Name,
				Reasoning:   m.Reasoning,
				Region:      m.Region,
				Group:       m.Group,
			}
		}
	}

	matches := make([]FusedMatch, 0, len(candidates))
	for _, c := range candidates {
		score := c.EmbeddingSimilarity
		if c.MeasurementSimilarity != nil {
			score = constants.EmbeddingWeight*c.EmbeddingSimilarity +
				constants.MeasurementWeight*(*c.MeasurementSimilarity)
		}
		c.FusedScore = clamp01(score)
		c.Confidence = TierFor(c.FusedScore)
		matches = append(matches, *c)
	}

	slices.SortFunc(matches, func(a, b FusedMatch) int {
		if c := cmp.Compare(b.FusedScore, a.FusedScore); c != 0 {
			return c
		}
		if c := cmp.Compare(b.EmbeddingSimilarity, a.EmbeddingSimilarity); c != 0 {
			return c
		}
		return cmp.Compare(a.Entity.ID, b.Entity.ID)
	})
	if len(matches) > e.topN {
		matches = matches[:e.topN]
	}

	result := &AnalysisResult{
		Matches:        matches,
		Mode:           SelectMode(hasMeasurement, hasVision),
		SignalsUsed:    []Signal{SignalEmbedding},
		Degraded:       (signals.MeasurementAttempted && !hasMeasurement) || (signals.VisionAttempted && !hasVision),
		DroppedMatches: dropped,
	}
	if hasMeasurement {
		result.SignalsUsed = append(result.SignalsUsed, SignalMeasurement)
	}
	if hasVision {
		result.SignalsUsed = append(result.SignalsUsed, SignalVision)
		result.VisionAnalysis = signals.Vision.Analysis
		result.VisionRegion = signals.Vision.Region
		result.VisionProvider = signals.Vision.Provider
		result.VisionCost = signals.Vision.Cost
	}
	return result, nil
}
