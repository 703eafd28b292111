// Package fusion combines the embedding, measurement and vision signals into one
// ranked, confidence-tiered list of reference entities.
package fusion

import (
	"slices"

	"github.com/kozaktomas/phenotype-matcher/internal/phenotype"
)

// Signal names an analysis signal source
type Signal string

const (
	SignalEmbedding   Signal = "embedding"
	SignalMeasurement Signal = "measurement"
	SignalVision      Signal = "vision"
)

// Mode is the scoring rule selected from the available signals
type Mode string

const (
	ModeEmbeddingOnly        Mode = "embedding_only"
	ModeEmbeddingMeasurement Mode = "embedding_measurement"
	ModeEmbeddingVision      Mode = "embedding_vision"
	ModeFull                 Mode = "full"
)

// Tier is the coarse confidence bucket of a fused score
type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

// RawMatch is a signal's opinion about one entity before reconciliation.
// EntityID is set by signals that already know the corpus id; vision matches
// only carry a free-text Name.
type RawMatch struct {
	Source    Signal
	EntityID  string
	Name      string
	Score     float64 // similarity in [0,1], or 0-100 confidence for vision
	Reasoning string
	Region    string
	Group     string
}

// VisionSignal is a validated vision classification
type VisionSignal struct {
	Analysis string
	Region   string
	Provider string
	Cost     float64
	Matches  []RawMatch
}

// Signals collects what each source produced for one request. A nil or empty
// Measurement and a nil Vision mean the signal is unavailable. The Attempted
// flags record whether the optional signal was requested at all, so a missing
// one can be told apart from a disabled one.
type Signals struct {
	Embedding            []RawMatch
	Measurement          []RawMatch
	Vision               *VisionSignal
	MeasurementAttempted bool
	VisionAttempted      bool
}

// MatchMetadata carries vision details merged onto a match
type MatchMetadata struct {
	VisionLabel string `json:"vision_label,omitempty"`
	Reasoning   string `json:"reasoning,omitempty"`
	Region      string `json:"region,omitempty"`
	Group       string `json:"group,omitempty"`
}

// FusedMatch is a resolved entity with its per-signal scores. A nil signal
// score means the signal did not contribute, and serializes as null.
type FusedMatch struct {
	Entity                phenotype.ReferenceEntity `json:"entity"`
	EmbeddingSimilarity   float64                   `json:"embedding_similarity"`
	MeasurementSimilarity *float64                  `json:"measurement_similarity"`
	VisionConfidence      *float64                  `json:"vision_confidence"`
	FusedScore            float64                   `json:"fused_score"`
	Confidence            Tier                      `json:"confidence"`
	Metadata              MatchMetadata             `json:"metadata"`
}

// AnalysisResult is the ranked outcome of an analysis. Matches are ordered by
// non-increasing FusedScore and never empty for a successful analysis.
type AnalysisResult struct {
	Matches        []FusedMatch `json:"matches"`
	Mode           Mode         `json:"mode"`
	SignalsUsed    []Signal     `json:"signals_used"`
	Degraded       bool         `json:"degraded"`
	VisionAnalysis string       `json:"vision_analysis,omitempty"`
	VisionRegion   string       `json:"vision_region,omitempty"`
	VisionProvider string       `json:"vision_provider,omitempty"`
	VisionCost     float64      `json:"vision_cost,omitempty"`
	DroppedMatches int          `json:"dropped_matches"`
}

// Primary returns the top match, nil for an empty result.
func (r *AnalysisResult) Primary() *FusedMatch {
	if r == nil || len(r.Matches) == 0 {
		return nil
	}
	return &r.Matches[0]
}

// Secondary returns up to k matches following the primary.
func (r *AnalysisResult) Secondary(k int) []FusedMatch {
	if r == nil || len(r.Matches) < 2 || k <= 0 {
		return nil
	}
	end := min(len(r.Matches), k+1)
	return r.Matches[1:end]
}

// Used reports whether the signal contributed to the result.
func (r *AnalysisResult) Used(s Signal) bool {
	if r == nil {
		return false
	}
	return slices.Contains(r.SignalsUsed, s)
}
