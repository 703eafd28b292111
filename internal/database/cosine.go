package database

import "math"

// CosineDistance computes the cosine distance between two vectors.
// Returns a value between 0 (identical) and 2 (opposite); mismatched lengths,
// empty and zero vectors are at the maximum distance.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2.0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 2.0
	}

	similarity := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp to [-1, 1] to handle floating point errors
	similarity = max(-1, min(1, similarity))
	return 1 - similarity
}

// SimilarityFromDistance converts a cosine distance into a similarity in [0, 1].
// Opposing vectors (distance > 1) count as no similarity at all.
func SimilarityFromDistance(distance float64) float64 {
	if math.IsNaN(distance) {
		return 0
	}
	return max(0, min(1, 1-distance))
}
