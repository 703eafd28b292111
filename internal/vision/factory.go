package vision

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/phenotype-matcher/internal/config"
)

// NewProvider builds the provider selected by VISION_PROVIDER. It returns nil
// without error when vision is disabled.
func NewProvider(ctx context.Context, cfg *config.Config) (Provider, error) {
	switch cfg.Vision.Provider {
	case "", "none":
		return nil, nil
	case "openai":
		if cfg.OpenAI.Token == "" {
			return nil, errors.New("OPENAI_TOKEN is required for the openai vision provider")
		}
		pricing := cfg.GetModelPricing(chatModel)
		return NewOpenAIProvider(cfg.OpenAI.Token, Pricing{Input: pricing.Input, Output: pricing.Output}), nil
	case "gemini":
		if cfg.Gemini.APIKey == "" {
			return nil, errors.New("GEMINI_API_KEY is required for the gemini vision provider")
		}
		pricing := cfg.GetModelPricing(geminiModel)
		provider, err := NewGeminiProvider(ctx, cfg.Gemini.APIKey, Pricing{Input: pricing.Input, Output: pricing.Output})
		if err != nil {
			return nil, err
		}
		return provider, nil
	case "ollama":
		model := cfg.Ollama.Model
		if model == "" {
			model = defaultOllamaModel
		}
		pricing := cfg.GetModelPricing(model)
		return NewOllamaProvider(cfg.Ollama.URL, model, Pricing{Input: pricing.Input, Output: pricing.Output}), nil
	default:
		return nil, fmt.Errorf("unknown vision provider %q", cfg.Vision.Provider)
	}
}
