// Package vision wraps vision-language models that classify a face against the
// reference catalog. It is the least reliable signal: every failure degrades to
// "no classification".
package vision

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"sync"
)

//go:embed prompts/classification.txt
var classificationPrompt string

// Provider defines the interface for vision classification backends.
type Provider interface {
	Name() string
	// Classify asks the model which catalog names the face resembles.
	Classify(ctx context.Context, imageData []byte, catalog []string) (*Classification, error)
	GetUsage() Usage
}

// Usage tracks token usage and calculates cost.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalCost    float64 // in USD
}

// Pricing holds input/output prices per 1M tokens
type Pricing struct {
	Input  float64
	Output float64
}

// usageTracker accumulates usage across concurrent requests
type usageTracker struct {
	mu      sync.Mutex
	usage   Usage
	pricing Pricing
}

// track records one call and returns its cost
func (t *usageTracker) track(inputTokens, outputTokens int64) float64 {
	cost := float64(inputTokens)/1_000_000*t.pricing.Input + float64(outputTokens)/1_000_000*t.pricing.Output

	t.mu.Lock()
	defer t.mu.Unlock()
	t.usage.InputTokens += int(inputTokens)
	t.usage.OutputTokens += int(outputTokens)
	t.usage.TotalCost += cost
	return cost
}

func (t *usageTracker) get() Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.usage
}

// buildClassificationPrompt appends the catalog to the embedded prompt.
func buildClassificationPrompt(catalog []string) string {
	var b strings.Builder
	b.WriteString(classificationPrompt)
	for _, name := range catalog {
		fmt.Fprintf(&b, "- %s\n", name)
	}
	return b.String()
}

// extractJSON attempts to extract JSON from a response that may contain extra text
func extractJSON(content string) string {
	start := strings.Index(content, "{")
	if start == -1 {
		return content
	}

	depth := 0
	for i := start; i < len(content); i++ {
		switch content[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}

	return content[start:]
}
