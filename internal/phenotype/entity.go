// Package phenotype holds the reference corpus: the canonical archetypes an
// analysis is matched against, and the name reconciliation used to map free-text
// labels onto them.
package phenotype

// ReferenceEntity is a canonical archetype of the matching corpus. Entities are
// immutable once loaded into an Index.
type ReferenceEntity struct {
	ID          string             `json:"id" yaml:"id"`
	Name        string             `json:"name" yaml:"name"`
	Description string             `json:"description,omitempty" yaml:"description"`
	Regions     []string           `json:"regions,omitempty" yaml:"regions"`
	Vector      []float32          `json:"-" yaml:"vector,omitempty"`
	Archetype   map[string]float64 `json:"archetype,omitempty" yaml:"archetype,omitempty"` // stored reference ratios, keyed like anthropometric profiles
}

// Key returns the canonical name key of the entity.
func (e ReferenceEntity) Key() string {
	return Normalize(e.Name)
}
