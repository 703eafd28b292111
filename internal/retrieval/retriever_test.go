package retrieval

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/kozaktomas/phenotype-matcher/internal/database"
	"github.com/kozaktomas/phenotype-matcher/internal/database/mock"
	"github.com/kozaktomas/phenotype-matcher/internal/phenotype"
)

func setup(t *testing.T, refs []database.StoredReference) (*Retriever, *mock.MockReferenceStore) {
	t.Helper()
	store := mock.NewMockReferenceStore()
	entities := make([]phenotype.ReferenceEntity, 0, len(refs))
	for _, ref := range refs {
		store.AddReference(ref)
		entities = append(entities, phenotype.ReferenceEntity{ID: ref.ID, Name: ref.Name})
	}
	index, err := phenotype.NewIndex(entities)
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	return NewRetriever(store, index, nil), store
}

func TestRetrieve_Ordering(t *testing.T) {
	r, _ := setup(t, []database.StoredReference{
		{ID: "a", Name: "Alpha", Embedding: []float32{1, 0, 0}},
		{ID: "b", Name: "Beta", Embedding: []float32{0.8, 0.6, 0}},
		{ID: "c", Name: "Gamma", Embedding: []float32{0, 1, 0}},
		{ID: "d", Name: "Delta", Embedding: []float32{-1, 0, 0}},
	})

	got, err := r.Retrieve(context.Background(), []float32{1, 0, 0}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(got))
	}
	wantIDs := []string{"a", "b", "c"}
	for i, id := range wantIDs {
		if got[i].Entity.ID != id {
			t.Errorf("candidate %d: expected %s, got %s", i, id, got[i].Entity.ID)
		}
	}
	if got[0].Similarity < 0.999 {
		t.Errorf("expected similarity ~1 for identical vector, got %f", got[0].Similarity)
	}
	if got[2].Similarity > 1e-6 {
		t.Errorf("expected similarity ~0 for orthogonal vector, got %f", got[2].Similarity)
	}
}

func TestRetrieve_OppositeVectorClampedToZero(t *testing.T) {
	r, _ := setup(t, []database.StoredReference{
		{ID: "d", Name: "Delta", Embedding: []float32{-1, 0}},
	})
	got, err := r.Retrieve(context.Background(), []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	if got[0].Similarity != 0 {
		t.Errorf("expected similarity clamped to 0, got %f", got[0].Similarity)
	}
}

func TestRetrieve_TiesBrokenByID(t *testing.T) {
	r, _ := setup(t, []database.StoredReference{
		{ID: "z", Name: "Zeta", Embedding: []float32{1, 0}},
		{ID: "m", Name: "Mu", Embedding: []float32{1, 0}},
	})
	got, err := r.Retrieve(context.Background(), []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[0].Entity.ID != "m" || got[1].Entity.ID != "z" {
		t.Errorf("expected [m z], got [%s %s]", got[0].Entity.ID, got[1].Entity.ID)
	}
}

func TestRetrieve_DropsReferencesMissingFromIndex(t *testing.T) {
	r, store := setup(t, []database.StoredReference{
		{ID: "a", Name: "Alpha", Embedding: []float32{1, 0}},
	})
	store.AddReference(database.StoredReference{ID: "ghost", Name: "Ghost", Embedding: []float32{1, 0.1}})

	got, err := r.Retrieve(context.Background(), []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Entity.ID != "a" {
		t.Errorf("expected only 'a', got %+v", got)
	}
}

func TestRetrieve_Errors(t *testing.T) {
	r, store := setup(t, []database.StoredReference{
		{ID: "a", Name: "Alpha", Embedding: []float32{1, 0}},
	})

	if _, err := r.Retrieve(context.Background(), nil, 5); !errors.Is(err, ErrEmptyVector) {
		t.Errorf("expected ErrEmptyVector, got %v", err)
	}

	storeErr := errors.New("connection refused")
	store.FindNearestError = storeErr
	if _, err := r.Retrieve(context.Background(), []float32{1, 0}, 5); !errors.Is(err, storeErr) {
		t.Errorf("expected wrapped store error, got %v", err)
	}
}

func TestRetrieve_PropertySortedAndBounded(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	const dim = 8

	randVec := func() []float32 {
		v := make([]float32, dim)
		for i := range v {
			v[i] = rng.Float32()*2 - 1
		}
		return v
	}

	refs := make([]database.StoredReference, 25)
	for i := range refs {
		id := string(rune('a'+i%26)) + string(rune('a'+i/26))
		refs[i] = database.StoredReference{ID: id, Name: "Entity " + id, Embedding: randVec()}
	}
	r, _ := setup(t, refs)

	for range 50 {
		k := rng.IntN(30) + 1
		got, err := r.Retrieve(context.Background(), randVec(), k)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) > k {
			t.Fatalf("expected at most %d candidates, got %d", k, len(got))
		}
		for i, c := range got {
			if c.Similarity < 0 || c.Similarity > 1 {
				t.Fatalf("similarity out of range: %f", c.Similarity)
			}
			if i > 0 && c.Similarity > got[i-1].Similarity {
				t.Fatalf("similarity increased at %d: %f > %f", i, c.Similarity, got[i-1].Similarity)
			}
		}
	}
}
