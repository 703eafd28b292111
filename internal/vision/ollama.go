package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kozaktomas/phenotype-matcher/internal/constants"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "llama3.2-vision:11b"

	// ollamaKeepAlive keeps the model loaded between analyses
	ollamaKeepAlive = "10m"
	// maxErrorBody caps how much of a failed response ends up in the error
	maxErrorBody = 512
)

// OllamaProvider classifies with a local vision model served by Ollama.
type OllamaProvider struct {
	baseURL string
	model   string
	client  *http.Client
	usage   usageTracker
}

func NewOllamaProvider(baseURL, model string, pricing Pricing) *OllamaProvider {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if model == "" {
		model = defaultOllamaModel
	}
	return &OllamaProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  &http.Client{},
		usage:   usageTracker{pricing: pricing},
	}
}

func (p *OllamaProvider) Name() string {
	return p.model
}

func (p *OllamaProvider) GetUsage() Usage {
	return p.usage.get()
}

type ollamaChatRequest struct {
	Model     string          `json:"model"`
	Messages  []ollamaMessage `json:"messages"`
	Stream    bool            `json:"stream"`
	Format    string          `json:"format"`
	KeepAlive string          `json:"keep_alive,omitempty"`
	Options   ollamaOptions   `json:"options"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// ollamaOptions pins sampling so the same face yields the same labels.
type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	Seed        int     `json:"seed"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int64  `json:"prompt_eval_count"`
	EvalCount       int64  `json:"eval_count"`
}

func (p *OllamaProvider) Classify(ctx context.Context, imageData []byte, catalog []string) (*Classification, error) {
	prepared, err := PrepareImage(imageData, constants.MaxVisionImageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare image: %w", err)
	}

	resp, err := p.chat(ctx, ollamaChatRequest{
		Model: p.model,
		Messages: []ollamaMessage{
			{Role: "system", Content: buildClassificationPrompt(catalog)},
			{
				Role:    "user",
				Content: "Classify this face.",
				Images:  []string{base64.StdEncoding.EncodeToString(prepared)},
			},
		},
		Format:    "json",
		KeepAlive: ollamaKeepAlive,
		Options:   ollamaOptions{NumPredict: constants.VisionMaxTokens},
	})
	if err != nil {
		return nil, fmt.Errorf("ollama API error: %w", err)
	}

	cost := p.usage.track(resp.PromptEvalCount, resp.EvalCount)

	// A reply cut off at num_predict is truncated JSON.
	if resp.DoneReason == "length" {
		return nil, fmt.Errorf("%w: response truncated at %d tokens", ErrInvalidPayload, constants.VisionMaxTokens)
	}

	classification, err := ParseClassification(p.Name(), resp.Message.Content)
	if err != nil {
		return nil, err
	}
	classification.Cost = cost
	return classification, nil
}

func (p *OllamaProvider) chat(ctx context.Context, chatReq ollamaChatRequest) (*ollamaChatResponse, error) {
	payload, err := json.Marshal(chatReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if !chatResp.Done {
		return nil, fmt.Errorf("incomplete response from model %s", p.model)
	}
	return &chatResp, nil
}
