package narrative

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kozaktomas/phenotype-matcher/internal/constants"
	"github.com/kozaktomas/phenotype-matcher/internal/fusion"
	"google.golang.org/genai"
)

const geminiModel = "gemini-2.5-flash"

// GeminiGenerator writes narratives with the Gemini API
type GeminiGenerator struct {
	client *genai.Client
}

func NewGeminiGenerator(ctx context.Context, apiKey string) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiGenerator{client: client}, nil
}

func (g *GeminiGenerator) Name() string {
	return geminiModel
}

func (g *GeminiGenerator) Generate(ctx context.Context, result *fusion.AnalysisResult) (string, error) {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: narrativePrompt + "\n\n" + describe(result)}},
		},
	}
	config := &genai.GenerateContentConfig{
		MaxOutputTokens: constants.NarrativeMaxTokens,
	}

	resp, err := g.client.Models.GenerateContent(ctx, geminiModel, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini API error: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("empty narrative from Gemini")
	}
	return text, nil
}
