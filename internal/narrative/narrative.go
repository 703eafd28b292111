// Package narrative writes the human-readable summary of an analysis result.
package narrative

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/kozaktomas/phenotype-matcher/internal/config"
	"github.com/kozaktomas/phenotype-matcher/internal/constants"
	"github.com/kozaktomas/phenotype-matcher/internal/fusion"
)

//go:embed prompts/narrative.txt
var narrativePrompt string

// TemplateSource is the source name recorded for the deterministic fallback
const TemplateSource = "template"

// Generator produces narrative text for a result
type Generator interface {
	Name() string
	Generate(ctx context.Context, result *fusion.AnalysisResult) (string, error)
}

// Template builds the deterministic fallback narrative from the top match names.
func Template(result *fusion.AnalysisResult) string {
	if result == nil || len(result.Matches) == 0 {
		return "No reference phenotype could be matched."
	}

	n := min(len(result.Matches), constants.NarrativeTemplateNames)
	names := make([]string, n)
	for i := range n {
		names[i] = result.Matches[i].Entity.Name
	}

	var b strings.Builder
	primary := result.Matches[0]
	fmt.Fprintf(&b, "The closest reference phenotype is %s (%s confidence).", names[0], primary.Confidence)
	switch len(names) {
	case 2:
		fmt.Fprintf(&b, " %s is the next closest match.", names[1])
	case 3:
		fmt.Fprintf(&b, " %s and %s are the next closest matches.", names[1], names[2])
	}
	if result.Degraded {
		b.WriteString(" Some analysis signals were unavailable, so the result is based on fewer signals than usual.")
	}
	return b.String()
}

// describe renders the result as plain text for the model.
func describe(result *fusion.AnalysisResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Mode: %s\n", result.Mode)
	signals := make([]string, len(result.SignalsUsed))
	for i, s := range result.SignalsUsed {
		signals[i] = string(s)
	}
	fmt.Fprintf(&b, "Signals used: %s\n", strings.Join(signals, ", "))
	if result.Degraded {
		b.WriteString("Some optional signals were unavailable.\n")
	}
	if result.VisionAnalysis != "" {
		fmt.Fprintf(&b, "Visual description: %s\n", result.VisionAnalysis)
	}
	if result.VisionRegion != "" {
		fmt.Fprintf(&b, "Suggested region: %s\n", result.VisionRegion)
	}
	b.WriteString("\nMatches (best first):\n")
	for i, m := range result.Matches {
		fmt.Fprintf(&b, "%d. %s: score %.2f, %s confidence", i+1, m.Entity.Name, m.FusedScore, m.Confidence)
		if len(m.Entity.Regions) > 0 {
			fmt.Fprintf(&b, ", regions %s", strings.Join(m.Entity.Regions, ", "))
		}
		if m.Metadata.Reasoning != "" {
			fmt.Fprintf(&b, ", visual note: %s", m.Metadata.Reasoning)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// NewGenerator builds the generator selected by NARRATIVE_PROVIDER. It returns
// nil without error when only the template should be used.
func NewGenerator(ctx context.Context, cfg *config.Config) (Generator, error) {
	switch cfg.Narrative.Provider {
	case "", "none", TemplateSource:
		return nil, nil
	case "openai":
		if cfg.OpenAI.Token == "" {
			return nil, errors.New("OPENAI_TOKEN is required for the openai narrative provider")
		}
		return NewOpenAIGenerator(cfg.OpenAI.Token), nil
	case "gemini":
		if cfg.Gemini.APIKey == "" {
			return nil, errors.New("GEMINI_API_KEY is required for the gemini narrative provider")
		}
		gen, err := NewGeminiGenerator(ctx, cfg.Gemini.APIKey)
		if err != nil {
			return nil, err
		}
		return gen, nil
	default:
		return nil, fmt.Errorf("unknown narrative provider %q", cfg.Narrative.Provider)
	}
}
