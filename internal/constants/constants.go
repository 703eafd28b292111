// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Fusion weights. Used only when the measurement signal is available; with
// embedding alone the fused score is the embedding similarity itself.
const (
	// EmbeddingWeight is the share of the embedding similarity in a blended score
	EmbeddingWeight = 0.70

	// MeasurementWeight is the share of the anthropometric similarity in a blended score
	MeasurementWeight = 0.30
)

// Confidence tier thresholds (exclusive lower bounds)
const (
	HighConfidenceThreshold   = 0.80
	MediumConfidenceThreshold = 0.65
)

// Matching constants
const (
	// DefaultTopN is the number of fused matches kept in an analysis result
	DefaultTopN = 10

	// DefaultCandidates is the number of nearest references fetched from the vector index
	DefaultCandidates = 20

	// DefaultSecondaryCount is the number of secondary matches stored in a report
	DefaultSecondaryCount = 4

	// NarrativeTemplateNames is how many top matches the fallback narrative mentions
	NarrativeTemplateNames = 3
)

// Anthropometric comparator. The keyword-bucket scoring is an approximation of
// per-entity archetype comparison; thresholds are not final.
const (
	// MeasurementBaseline is the neutral score for an entity with no matching bucket
	MeasurementBaseline = 0.5

	// FaceShapeBonus applies when the face width/height band matches the entity
	FaceShapeBonus = 0.20

	// NoseShapeBonus applies when the nasal index band matches the entity
	NoseShapeBonus = 0.15

	// HeadShapeBonus applies when the cephalic index band matches the entity
	HeadShapeBonus = 0.10

	BroadFaceRatio  = 1.95
	NarrowFaceRatio = 1.80

	BroadNasalIndex  = 85.0
	NarrowNasalIndex = 70.0

	BrachycephalicIndex  = 81.0
	DolichocephalicIndex = 75.0
)

// Vision constants
const (
	// MaxVisionImageSize is the maximum dimension of images sent to vision providers
	MaxVisionImageSize = 800

	// VisionJPEGQuality is the re-encoding quality of prepared vision images
	VisionJPEGQuality = 85

	// VisionMaxTokens bounds the classification response
	VisionMaxTokens = 800

	// NarrativeMaxTokens bounds the generated narrative
	NarrativeMaxTokens = 400
)

// Default timeouts for external calls
const (
	DefaultEmbeddingTimeout   = 30 * time.Second
	DefaultMeasurementTimeout = 15 * time.Second
	DefaultVisionTimeout      = 45 * time.Second
	DefaultNarrativeTimeout   = 30 * time.Second

	// HealthProbeTimeout bounds the embedding service health probe
	HealthProbeTimeout = 3 * time.Second
)

// File upload constants
const (
	// MaxUploadSize is the maximum image upload size in bytes (20MB)
	MaxUploadSize = 20 << 20
)
