package phenotype

import (
	"errors"
	"math/rand/v2"
	"testing"
)

func testEntities() []ReferenceEntity {
	return []ReferenceEntity{
		{ID: "nordid", Name: "Nordid", Regions: []string{"Scandinavia"}},
		{ID: "dinarid", Name: "Dinárid", Regions: []string{"Balkans"}},
		{ID: "east-baltid", Name: "East Baltid", Regions: []string{"Baltic"}},
		{ID: "alpinid", Name: "Alpinid"},
	}
}

func TestNewIndex(t *testing.T) {
	idx, err := NewIndex(testEntities())
	if err != nil {
		t.Fatalf("NewIndex failed: %v", err)
	}
	if idx.Len() != 4 {
		t.Errorf("expected 4 entities, got %d", idx.Len())
	}

	entities := idx.Entities()
	want := []string{"alpinid", "dinarid", "east-baltid", "nordid"}
	for i, id := range want {
		if entities[i].ID != id {
			t.Errorf("entity %d: expected %s, got %s", i, id, entities[i].ID)
		}
	}
}

func TestNewIndex_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		entities []ReferenceEntity
		wantErr  error
	}{
		{"empty id", []ReferenceEntity{{ID: " ", Name: "X"}}, ErrEmptyID},
		{"empty name", []ReferenceEntity{{ID: "x", Name: "!!"}}, ErrEmptyName},
		{"duplicate id", []ReferenceEntity{{ID: "x", Name: "A"}, {ID: "x", Name: "B"}}, ErrDuplicateID},
		{"duplicate key", []ReferenceEntity{{ID: "a", Name: "Nordid"}, {ID: "b", Name: "NORD-ID"}}, ErrDuplicateName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewIndex(tt.entities)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestMatchByName(t *testing.T) {
	idx, err := NewIndex(testEntities())
	if err != nil {
		t.Fatalf("NewIndex failed: %v", err)
	}

	tests := []struct {
		raw    string
		wantID string
	}{
		{"Nord-ID!!", "nordid"},
		{"nordid", "nordid"},
		{"DINARID", "dinarid"},
		{"east baltid", "east-baltid"},
		{"Nordic", ""},
		{"Nordid type", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			e, ok := idx.MatchByName(tt.raw)
			if tt.wantID == "" {
				if ok {
					t.Errorf("expected no match, got %s", e.ID)
				}
				return
			}
			if !ok {
				t.Fatalf("expected match %s, got none", tt.wantID)
			}
			if e.ID != tt.wantID {
				t.Errorf("expected %s, got %s", tt.wantID, e.ID)
			}
		})
	}
}

func TestMatchByName_KeyAlwaysEqual(t *testing.T) {
	idx, err := NewIndex(testEntities())
	if err != nil {
		t.Fatalf("NewIndex failed: %v", err)
	}
	inputs := []string{"Nordid", "Dinárid", "east-baltid", "ALPINID!"}

	r := rand.New(rand.NewPCG(7, 11))
	for range 2000 {
		inputs = append(inputs, randomLabel(r))
	}

	for _, raw := range inputs {
		e, ok := idx.MatchByName(raw)
		if ok && Normalize(e.Name) != Normalize(raw) {
			t.Fatalf("MatchByName(%q) returned %q with a different key", raw, e.Name)
		}
	}
}

func TestResolve(t *testing.T) {
	idx, err := NewIndex(testEntities())
	if err != nil {
		t.Fatalf("NewIndex failed: %v", err)
	}

	if e, ok := idx.Resolve("alpinid", "ignored"); !ok || e.ID != "alpinid" {
		t.Errorf("expected resolve by id, got %v %v", e.ID, ok)
	}
	if e, ok := idx.Resolve("unknown", "Nordid"); !ok || e.ID != "nordid" {
		t.Errorf("expected fallback to name, got %v %v", e.ID, ok)
	}
	if _, ok := idx.Resolve("unknown", "unknown"); ok {
		t.Error("expected no match")
	}
}
