package database

import (
	"encoding/json"
	"time"
)

// StoredReference represents a reference entity stored in the database
type StoredReference struct {
	ID          string
	Name        string
	Description string
	Regions     []string
	Embedding   []float32
	Archetype   map[string]float64 // reference anthropometric ratios (optional)
	Model       string             // embedding model that produced the vector
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SecondaryMatch is a ranked non-primary match kept in a report
type SecondaryMatch struct {
	EntityID string  `json:"entity_id"`
	Score    float64 `json:"score"`
}

// StoredReport is an assembled analysis snapshot. Reports are append-only;
// the only mutation after insert is the access counter.
type StoredReport struct {
	ID              string
	PrimaryEntityID string
	PrimaryScore    float64
	Secondary       []SecondaryMatch
	Narrative       string
	NarrativeSource string // generator name, or "template" for the deterministic fallback
	UploadKey       string
	ImageSHA256     string
	Mode            string
	SignalsUsed     []string
	Degraded        bool
	VisionProvider  string
	VisionCost      float64
	Result          json.RawMessage // full analysis result as JSON
	AccessCount     int
	CreatedAt       time.Time
	LastAccessedAt  *time.Time
}
