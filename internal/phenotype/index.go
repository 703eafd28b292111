package phenotype

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	ErrEmptyID       = errors.New("reference entity has empty id")
	ErrEmptyName     = errors.New("reference entity has empty name")
	ErrDuplicateID   = errors.New("duplicate reference entity id")
	ErrDuplicateName = errors.New("duplicate reference entity name")
)

// Index is a read-only lookup over the reference corpus by id and canonical
// name key. It is safe for concurrent use once built.
type Index struct {
	byID     map[string]ReferenceEntity
	byKey    map[string]string // canonical key -> id
	entities []ReferenceEntity // sorted by id
}

// NewIndex validates the entities and builds the index. Two entities whose names
// normalize to the same key are rejected, since name reconciliation could not
// tell them apart.
func NewIndex(entities []ReferenceEntity) (*Index, error) {
	idx := &Index{
		byID:     make(map[string]ReferenceEntity, len(entities)),
		byKey:    make(map[string]string, len(entities)),
		entities: make([]ReferenceEntity, 0, len(entities)),
	}

	for _, e := range entities {
		e.ID = strings.TrimSpace(e.ID)
		if e.ID == "" {
			return nil, fmt.Errorf("%w (name %q)", ErrEmptyID, e.Name)
		}
		key := e.Key()
		if key == "" {
			return nil, fmt.Errorf("%w: %s", ErrEmptyName, e.ID)
		}
		if _, ok := idx.byID[e.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, e.ID)
		}
		if other, ok := idx.byKey[key]; ok {
			return nil, fmt.Errorf("%w: %q (%s and %s)", ErrDuplicateName, e.Name, other, e.ID)
		}
		idx.byID[e.ID] = e
		idx.byKey[key] = e.ID
		idx.entities = append(idx.entities, e)
	}

	slices.SortFunc(idx.entities, func(a, b ReferenceEntity) int {
		return strings.Compare(a.ID, b.ID)
	})
	return idx, nil
}

// ByID returns the entity with the given id.
func (idx *Index) ByID(id string) (ReferenceEntity, bool) {
	e, ok := idx.byID[id]
	return e, ok
}

// MatchByName resolves a free-text label by exact canonical key. There is no
// fuzzy matching: a label that does not normalize to a known key is unresolved.
func (idx *Index) MatchByName(raw string) (ReferenceEntity, bool) {
	key := Normalize(raw)
	if key == "" {
		return ReferenceEntity{}, false
	}
	id, ok := idx.byKey[key]
	if !ok {
		return ReferenceEntity{}, false
	}
	return idx.byID[id], true
}

// Resolve looks up by id first and falls back to the name.
func (idx *Index) Resolve(id, name string) (ReferenceEntity, bool) {
	if id != "" {
		if e, ok := idx.byID[id]; ok {
			return e, true
		}
	}
	return idx.MatchByName(name)
}

// Len returns the number of entities.
func (idx *Index) Len() int {
	return len(idx.entities)
}

// Entities returns a copy of all entities sorted by id.
func (idx *Index) Entities() []ReferenceEntity {
	return slices.Clone(idx.entities)
}

// Names returns the display names of all entities sorted by id.
func (idx *Index) Names() []string {
	names := make([]string, len(idx.entities))
	for i, e := range idx.entities {
		names[i] = e.Name
	}
	return names
}
