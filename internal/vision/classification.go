package vision

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/kozaktomas/phenotype-matcher/internal/fusion"
)

var (
	// ErrInvalidPayload is returned for a classification that fails validation
	ErrInvalidPayload = errors.New("invalid classification payload")
)

// Match is one phenotype the model considers similar
type Match struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"` // 0-100, self-reported by the model
	Reasoning  string  `json:"reasoning,omitempty"`
	Group      string  `json:"group,omitempty"`
}

// Classification is a validated vision result
type Classification struct {
	Analysis      string  `json:"analysis"`
	PrimaryRegion string  `json:"primary_region"`
	Matches       []Match `json:"matches"`
	Provider      string  `json:"provider"`
	Cost          float64 `json:"cost"`
}

// classificationPayload mirrors what the model is asked to return. Pointers
// distinguish missing fields from zero values.
type classificationPayload struct {
	Analysis      *string `json:"analysis"`
	PrimaryRegion string  `json:"primary_region"`
	Matches       *[]struct {
		Name       string   `json:"name"`
		Confidence *float64 `json:"confidence"`
		Reasoning  string   `json:"reasoning"`
		Group      string   `json:"group"`
	} `json:"matches"`
}

// ParseClassification validates a raw model response. Text around the JSON
// object is ignored. Every match needs a name and a confidence in [0,100].
func ParseClassification(provider, content string) (*Classification, error) {
	var payload classificationPayload
	if err := json.Unmarshal([]byte(extractJSON(content)), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if payload.Analysis == nil {
		return nil, fmt.Errorf("%w: missing analysis", ErrInvalidPayload)
	}
	if payload.Matches == nil {
		return nil, fmt.Errorf("%w: missing matches", ErrInvalidPayload)
	}

	c := &Classification{
		Analysis:      strings.TrimSpace(*payload.Analysis),
		PrimaryRegion: strings.TrimSpace(payload.PrimaryRegion),
		Matches:       make([]Match, 0, len(*payload.Matches)),
		Provider:      provider,
	}
	for i, m := range *payload.Matches {
		name := strings.TrimSpace(m.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: match %d has no name", ErrInvalidPayload, i)
		}
		if m.Confidence == nil {
			return nil, fmt.Errorf("%w: match %q has no confidence", ErrInvalidPayload, name)
		}
		conf := *m.Confidence
		if math.IsNaN(conf) || conf < 0 || conf > 100 {
			return nil, fmt.Errorf("%w: match %q confidence %v out of range", ErrInvalidPayload, name, conf)
		}
		c.Matches = append(c.Matches, Match{
			Name:       name,
			Confidence: conf,
			Reasoning:  strings.TrimSpace(m.Reasoning),
			Group:      strings.TrimSpace(m.Group),
		})
	}
	return c, nil
}

// RawMatches converts the matches for fusion. Names are left unresolved.
func (c *Classification) RawMatches() []fusion.RawMatch {
	if c == nil {
		return nil
	}
	matches := make([]fusion.RawMatch, len(c.Matches))
	for i, m := range c.Matches {
		matches[i] = fusion.RawMatch{
			Source:    fusion.SignalVision,
			Name:      m.Name,
			Score:     m.Confidence,
			Reasoning: m.Reasoning,
			Region:    c.PrimaryRegion,
			Group:     m.Group,
		}
	}
	return matches
}

// Signal returns the classification as a fusion input, nil when absent.
func (c *Classification) Signal() *fusion.VisionSignal {
	if c == nil {
		return nil
	}
	return &fusion.VisionSignal{
		Analysis: c.Analysis,
		Region:   c.PrimaryRegion,
		Provider: c.Provider,
		Cost:     c.Cost,
		Matches:  c.RawMatches(),
	}
}
