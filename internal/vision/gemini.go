package vision

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/phenotype-matcher/internal/constants"
	"google.golang.org/genai"
)

const geminiModel = "gemini-2.5-flash"

type GeminiProvider struct {
	client *genai.Client
	usage  usageTracker
}

func NewGeminiProvider(ctx context.Context, apiKey string, pricing Pricing) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiProvider{
		client: client,
		usage:  usageTracker{pricing: pricing},
	}, nil
}

func (p *GeminiProvider) Name() string {
	return geminiModel
}

func (p *GeminiProvider) GetUsage() Usage {
	return p.usage.get()
}

func (p *GeminiProvider) Classify(ctx context.Context, imageData []byte, catalog []string) (*Classification, error) {
	prepared, err := PrepareImage(imageData, constants.MaxVisionImageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare image: %w", err)
	}

	request := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{Text: "Classify this face."},
			{InlineData: &genai.Blob{Data: prepared, MIMEType: "image/jpeg"}},
		},
	}}
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: buildClassificationPrompt(catalog)}},
		},
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0),
		MaxOutputTokens:  constants.VisionMaxTokens,
	}

	result, err := p.client.Models.GenerateContent(ctx, geminiModel, request, config)
	if err != nil {
		return nil, fmt.Errorf("gemini API error: %w", err)
	}

	var cost float64
	if meta := result.UsageMetadata; meta != nil {
		cost = p.usage.track(int64(meta.PromptTokenCount), int64(meta.CandidatesTokenCount))
	}

	if len(result.Candidates) > 0 && result.Candidates[0].FinishReason == genai.FinishReasonMaxTokens {
		return nil, fmt.Errorf("%w: response truncated at %d tokens", ErrInvalidPayload, constants.VisionMaxTokens)
	}
	text := result.Text()
	if text == "" {
		return nil, errors.New("gemini returned no text")
	}

	classification, err := ParseClassification(p.Name(), text)
	if err != nil {
		return nil, err
	}
	classification.Cost = cost
	return classification, nil
}
