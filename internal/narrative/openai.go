package narrative

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kozaktomas/phenotype-matcher/internal/constants"
	"github.com/kozaktomas/phenotype-matcher/internal/fusion"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const chatModel = openai.ChatModelGPT4_1Mini

// OpenAIGenerator writes narratives with the chat completions API
type OpenAIGenerator struct {
	client *openai.Client
}

func NewOpenAIGenerator(apiKey string, opts ...option.RequestOption) *OpenAIGenerator {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	client := openai.NewClient(opts...)
	return &OpenAIGenerator{client: &client}
}

func (g *OpenAIGenerator) Name() string {
	return chatModel
}

func (g *OpenAIGenerator) Generate(ctx context.Context, result *fusion.AnalysisResult) (string, error) {
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: chatModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{
						OfString: openai.String(narrativePrompt),
					},
				},
			},
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(describe(result)),
					},
				},
			},
		},
		MaxTokens: openai.Int(constants.NarrativeMaxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("no response from OpenAI")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("empty narrative from OpenAI")
	}
	return text, nil
}
