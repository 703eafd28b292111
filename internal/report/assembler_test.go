package report

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/kozaktomas/phenotype-matcher/internal/database"
	"github.com/kozaktomas/phenotype-matcher/internal/database/mock"
	"github.com/kozaktomas/phenotype-matcher/internal/fusion"
	"github.com/kozaktomas/phenotype-matcher/internal/narrative"
	"github.com/kozaktomas/phenotype-matcher/internal/phenotype"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeGenerator struct {
	text  string
	err   error
	block bool
}

func (g *fakeGenerator) Name() string { return "fake-model" }

func (g *fakeGenerator) Generate(ctx context.Context, _ *fusion.AnalysisResult) (string, error) {
	if g.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return g.text, g.err
}

func sampleResult(n int) *fusion.AnalysisResult {
	ids := []string{"nordid", "alpinid", "dinarid", "sinid", "indid", "aethiopid"}
	r := &fusion.AnalysisResult{
		Mode:        fusion.ModeEmbeddingMeasurement,
		SignalsUsed: []fusion.Signal{fusion.SignalEmbedding, fusion.SignalMeasurement},
	}
	for i := range n {
		score := 0.9 - float64(i)*0.05
		r.Matches = append(r.Matches, fusion.FusedMatch{
			Entity:              phenotype.ReferenceEntity{ID: ids[i], Name: ids[i]},
			EmbeddingSimilarity: score,
			FusedScore:          score,
			Confidence:          fusion.TierFor(score),
		})
	}
	return r
}

func TestAssemble(t *testing.T) {
	store := mock.NewMockReportStore()
	a := NewAssembler(store, &fakeGenerator{text: "Generated."}, time.Second, zap.NewNop())

	rep, err := a.Assemble(context.Background(), sampleResult(6), Source{UploadKey: "up/1.jpg", ImageSHA256: "abc"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rep.ID == "" {
		t.Error("expected generated id")
	}
	if rep.PrimaryEntityID != "nordid" || rep.PrimaryScore != 0.9 {
		t.Errorf("unexpected primary %s %v", rep.PrimaryEntityID, rep.PrimaryScore)
	}
	if len(rep.Secondary) != 4 {
		t.Fatalf("expected 4 secondary matches, got %d", len(rep.Secondary))
	}
	if rep.Secondary[0].EntityID != "alpinid" || rep.Secondary[3].EntityID != "indid" {
		t.Errorf("unexpected secondary order %+v", rep.Secondary)
	}
	if rep.Narrative != "Generated." || rep.NarrativeSource != "fake-model" {
		t.Errorf("unexpected narrative %q from %q", rep.Narrative, rep.NarrativeSource)
	}
	if rep.Mode != "embedding_measurement" || len(rep.SignalsUsed) != 2 {
		t.Errorf("unexpected mode/signals %s %v", rep.Mode, rep.SignalsUsed)
	}
	if rep.UploadKey != "up/1.jpg" || rep.ImageSHA256 != "abc" {
		t.Errorf("unexpected source %q %q", rep.UploadKey, rep.ImageSHA256)
	}

	var decoded fusion.AnalysisResult
	if err := json.Unmarshal(rep.Result, &decoded); err != nil {
		t.Fatalf("stored result is not valid JSON: %v", err)
	}
	if len(decoded.Matches) != 6 {
		t.Errorf("expected full match list in result, got %d", len(decoded.Matches))
	}

	if store.Len() != 1 {
		t.Errorf("expected 1 stored report, got %d", store.Len())
	}
}

func TestAssemble_TemplateFallback(t *testing.T) {
	tests := []struct {
		name      string
		generator narrative.Generator
		warnings  int
	}{
		{"no generator", nil, 0},
		{"generator error", &fakeGenerator{err: errors.New("quota exceeded")}, 1},
		{"generator timeout", &fakeGenerator{block: true}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, observed := observer.New(zapcore.WarnLevel)
			a := NewAssembler(mock.NewMockReportStore(), tt.generator, 20*time.Millisecond, zap.New(core))

			result := sampleResult(3)
			rep, err := a.Assemble(context.Background(), result, Source{})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rep.Narrative != narrative.Template(result) {
				t.Errorf("expected template narrative, got %q", rep.Narrative)
			}
			if rep.NarrativeSource != narrative.TemplateSource {
				t.Errorf("expected template source, got %q", rep.NarrativeSource)
			}
			if got := observed.FilterMessage("narrative generation failed, using template").Len(); got != tt.warnings {
				t.Errorf("expected %d warnings, got %d", tt.warnings, got)
			}
		})
	}
}

func TestAssemble_SingleMatch(t *testing.T) {
	a := NewAssembler(mock.NewMockReportStore(), nil, time.Second, nil)
	rep, err := a.Assemble(context.Background(), sampleResult(1), Source{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rep.Secondary) != 0 {
		t.Errorf("expected no secondary matches, got %d", len(rep.Secondary))
	}
}

func TestAssemble_Errors(t *testing.T) {
	t.Run("empty result", func(t *testing.T) {
		a := NewAssembler(mock.NewMockReportStore(), nil, time.Second, nil)
		if _, err := a.Assemble(context.Background(), &fusion.AnalysisResult{}, Source{}); !errors.Is(err, ErrEmptyResult) {
			t.Errorf("expected ErrEmptyResult, got %v", err)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		store := mock.NewMockReportStore()
		a := NewAssembler(store, nil, time.Second, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := a.Assemble(ctx, sampleResult(2), Source{}); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if store.Len() != 0 {
			t.Error("expected nothing persisted after cancellation")
		}
	})

	t.Run("cancelled during narrative", func(t *testing.T) {
		store := mock.NewMockReportStore()
		a := NewAssembler(store, &fakeGenerator{block: true}, time.Minute, nil)
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if _, err := a.Assemble(ctx, sampleResult(2), Source{}); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected context.DeadlineExceeded, got %v", err)
		}
		if store.Len() != 0 {
			t.Error("expected nothing persisted after cancellation")
		}
	})

	t.Run("save error", func(t *testing.T) {
		store := mock.NewMockReportStore()
		store.SaveError = errors.New("connection refused")
		a := NewAssembler(store, nil, time.Second, nil)
		if _, err := a.Assemble(context.Background(), sampleResult(2), Source{}); err == nil {
			t.Error("expected error")
		}
	})
}

func TestOpen(t *testing.T) {
	store := mock.NewMockReportStore()
	a := NewAssembler(store, nil, time.Second, nil)

	rep, err := a.Assemble(context.Background(), sampleResult(2), Source{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for want := 1; want <= 2; want++ {
		opened, err := a.Open(context.Background(), rep.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if opened.AccessCount != want {
			t.Errorf("expected access count %d, got %d", want, opened.AccessCount)
		}
		if opened.LastAccessedAt == nil {
			t.Error("expected last access time")
		}
	}

	if _, err := a.Open(context.Background(), "missing"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
