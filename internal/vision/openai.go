package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/kozaktomas/phenotype-matcher/internal/constants"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

const chatModel = openai.ChatModelGPT4_1Mini

type OpenAIProvider struct {
	client *openai.Client
	usage  usageTracker
}

// NewOpenAIProvider creates a provider for the chat completions API. The
// client's automatic retries are off: a failed classification is dropped, not
// repeated and billed again. Extra request options (base URL) are passed on.
func NewOpenAIProvider(apiKey string, pricing Pricing, opts ...option.RequestOption) *OpenAIProvider {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, opts...)
	client := openai.NewClient(opts...)
	return &OpenAIProvider{
		client: &client,
		usage:  usageTracker{pricing: pricing},
	}
}

func (p *OpenAIProvider) Name() string {
	return chatModel
}

func (p *OpenAIProvider) GetUsage() Usage {
	return p.usage.get()
}

func (p *OpenAIProvider) Classify(ctx context.Context, imageData []byte, catalog []string) (*Classification, error) {
	prepared, err := PrepareImage(imageData, constants.MaxVisionImageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare image: %w", err)
	}

	params := openai.ChatCompletionNewParams{
		Model: chatModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(buildClassificationPrompt(catalog)),
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart("Classify this face."),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL:    jpegDataURL(prepared),
					Detail: "low",
				}),
			}),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
		Temperature: openai.Float(0),
		MaxTokens:   openai.Int(constants.VisionMaxTokens),
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}
	cost := p.usage.track(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	if len(resp.Choices) == 0 {
		return nil, errors.New("OpenAI returned no choices")
	}
	choice := resp.Choices[0]
	if choice.FinishReason == "length" {
		return nil, fmt.Errorf("%w: response truncated at %d tokens", ErrInvalidPayload, constants.VisionMaxTokens)
	}

	classification, err := ParseClassification(p.Name(), choice.Message.Content)
	if err != nil {
		return nil, err
	}
	classification.Cost = cost
	return classification, nil
}

func jpegDataURL(data []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data)
}
