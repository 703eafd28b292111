package anthropometry

import (
	"slices"
	"strings"

	"github.com/kozaktomas/phenotype-matcher/internal/constants"
	"github.com/kozaktomas/phenotype-matcher/internal/fusion"
	"github.com/kozaktomas/phenotype-matcher/internal/phenotype"
)

// Buckets maps measurement bands to entity name keywords. Keywords are matched
// as substrings of the canonical entity key.
type Buckets struct {
	BroadFace       []string
	NarrowFace      []string
	BroadNose       []string
	NarrowNose      []string
	Brachycephalic  []string
	Dolichocephalic []string
}

// DefaultBuckets is a coarse keyword heuristic standing in for per-entity
// archetype ratios.
var DefaultBuckets = Buckets{
	BroadFace:       []string{"alpinid", "borreby", "tungid", "lappid", "sinid", "dalofaelid"},
	NarrowFace:      []string{"nordid", "mediterranid", "dinarid", "iranid", "aethiopid"},
	BroadNose:       []string{"congolid", "sudanid", "melanesid", "australid", "khoisanid"},
	NarrowNose:      []string{"nordid", "dinarid", "armenoid", "arabid", "iranid", "aethiopid"},
	Brachycephalic:  []string{"alpinid", "dinarid", "armenoid", "borreby", "tungid"},
	Dolichocephalic: []string{"nordid", "mediterranid", "atlantid", "aethiopid", "australid"},
}

// Comparator scores a measured profile against entity names
type Comparator struct {
	buckets Buckets
}

// NewComparator creates a comparator with the given keyword buckets
func NewComparator(buckets Buckets) *Comparator {
	return &Comparator{buckets: buckets}
}

func inBucket(key string, keywords []string) bool {
	return slices.ContainsFunc(keywords, func(kw string) bool {
		return strings.Contains(key, kw)
	})
}

// Compare returns the similarity of the profile to the named entity, starting
// from a neutral 0.5 and adding a bonus per matching band. The second result is
// false when the profile has no landmarks, in which case no entity is scored.
func (c *Comparator) Compare(profile *Profile, entityName string) (float64, bool) {
	if !profile.Available() {
		return 0, false
	}

	key := phenotype.Normalize(entityName)
	score := constants.MeasurementBaseline

	if fwh, ok := profile.Ratio(RatioFaceWidthHeight); ok {
		switch {
		case fwh >= constants.BroadFaceRatio && inBucket(key, c.buckets.BroadFace):
			score += constants.FaceShapeBonus
		case fwh <= constants.NarrowFaceRatio && inBucket(key, c.buckets.NarrowFace):
			score += constants.FaceShapeBonus
		}
	}

	if nasal, ok := profile.Ratio(RatioNasalIndex); ok {
		switch {
		case nasal >= constants.BroadNasalIndex && inBucket(key, c.buckets.BroadNose):
			score += constants.NoseShapeBonus
		case nasal <= constants.NarrowNasalIndex && inBucket(key, c.buckets.NarrowNose):
			score += constants.NoseShapeBonus
		}
	}

	if cephalic, ok := profile.Ratio(RatioCephalicIndex); ok {
		switch {
		case cephalic >= constants.BrachycephalicIndex && inBucket(key, c.buckets.Brachycephalic):
			score += constants.HeadShapeBonus
		case cephalic <= constants.DolichocephalicIndex && inBucket(key, c.buckets.Dolichocephalic):
			score += constants.HeadShapeBonus
		}
	}

	return max(0, min(1, score)), true
}

// CompareAll scores every entity, keyed by entity id. It returns nil when the
// profile is unavailable.
func (c *Comparator) CompareAll(profile *Profile, entities []phenotype.ReferenceEntity) map[string]float64 {
	if !profile.Available() {
		return nil
	}
	scores := make(map[string]float64, len(entities))
	for _, e := range entities {
		if score, ok := c.Compare(profile, e.Name); ok {
			scores[e.ID] = score
		}
	}
	return scores
}

// RawMatches scores the entities as measurement raw matches, nil when the
// profile is unavailable.
func (c *Comparator) RawMatches(profile *Profile, entities []phenotype.ReferenceEntity) []fusion.RawMatch {
	if !profile.Available() {
		return nil
	}
	matches := make([]fusion.RawMatch, 0, len(entities))
	for _, e := range entities {
		score, ok := c.Compare(profile, e.Name)
		if !ok {
			continue
		}
		matches = append(matches, fusion.RawMatch{
			Source:   fusion.SignalMeasurement,
			EntityID: e.ID,
			Name:     e.Name,
			Score:    score,
		})
	}
	return matches
}
