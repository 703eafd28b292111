package vision

import (
	"context"
	"encoding/json"
	"errors"
	"image/color"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/openai/openai-go/option"
)

const validContent = `{"analysis":"Broad face.","primary_region":"Alps","matches":[{"name":"Alpinid","confidence":77,"reasoning":"round head"}]}`

func TestOllamaProvider_Classify(t *testing.T) {
	var got ollamaChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"model":             "llama3.2-vision:11b",
			"message":           map[string]string{"role": "assistant", "content": validContent},
			"done":              true,
			"prompt_eval_count": 1000,
			"eval_count":        200,
		})
	}))
	defer server.Close()

	provider := NewOllamaProvider(server.URL, "", Pricing{Input: 1, Output: 2})
	image := mustEncodeJPEG(t, solidImage(1200, 900, color.White))

	c, err := provider.Classify(context.Background(), image, []string{"Alpinid", "Nordid"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Provider != defaultOllamaModel {
		t.Errorf("expected provider %s, got %s", defaultOllamaModel, c.Provider)
	}
	if len(c.Matches) != 1 || c.Matches[0].Name != "Alpinid" {
		t.Errorf("unexpected matches %+v", c.Matches)
	}
	wantCost := 1000.0/1_000_000*1 + 200.0/1_000_000*2
	if math.Abs(c.Cost-wantCost) > 1e-12 {
		t.Errorf("expected cost %v, got %v", wantCost, c.Cost)
	}

	if got.Format != "json" || got.Stream {
		t.Errorf("expected non-streaming json request, got %+v", got)
	}
	if got.Options.Temperature != 0 || got.KeepAlive == "" {
		t.Errorf("expected deterministic options with keep-alive, got %+v", got.Options)
	}
	if len(got.Messages) != 2 || len(got.Messages[1].Images) != 1 {
		t.Fatalf("expected system and user message with one image, got %+v", got.Messages)
	}
	if !strings.Contains(got.Messages[0].Content, "- Nordid") {
		t.Error("expected catalog in system prompt")
	}

	usage := provider.GetUsage()
	if usage.InputTokens != 1000 || usage.OutputTokens != 200 {
		t.Errorf("unexpected usage %+v", usage)
	}
}

func TestOllamaProvider_Failures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		content    string
		done       bool
		doneReason string
	}{
		{"server error", http.StatusInternalServerError, validContent, true, "stop"},
		{"unparsable content", http.StatusOK, "I am not sure.", true, "stop"},
		{"not done", http.StatusOK, validContent, false, ""},
		{"truncated", http.StatusOK, `{"matches":[{"name":"Alp`, true, "length"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(map[string]any{
					"message":     map[string]string{"role": "assistant", "content": tt.content},
					"done":        tt.done,
					"done_reason": tt.doneReason,
				})
			}))
			defer server.Close()

			provider := NewOllamaProvider(server.URL, "m", Pricing{})
			image := mustEncodeJPEG(t, solidImage(10, 10, color.White))
			if _, err := provider.Classify(context.Background(), image, nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestOpenAIProvider_Classify(t *testing.T) {
	var mu sync.Mutex
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		mu.Lock()
		json.NewDecoder(r.Body).Decode(&body)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 0,
			"model":   "gpt-4.1-mini",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": validContent},
			}},
			"usage": map[string]any{"prompt_tokens": 500, "completion_tokens": 100, "total_tokens": 600},
		})
	}))
	defer server.Close()

	provider := NewOpenAIProvider("test-key", Pricing{Input: 0.40, Output: 1.60},
		option.WithBaseURL(server.URL))
	image := mustEncodeJPEG(t, solidImage(50, 50, color.White))

	c, err := provider.Classify(context.Background(), image, []string{"Alpinid"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Provider != "gpt-4.1-mini" {
		t.Errorf("unexpected provider %q", c.Provider)
	}
	wantCost := 500.0/1_000_000*0.40 + 100.0/1_000_000*1.60
	if math.Abs(c.Cost-wantCost) > 1e-12 {
		t.Errorf("expected cost %v, got %v", wantCost, c.Cost)
	}

	mu.Lock()
	defer mu.Unlock()
	if rf, ok := body["response_format"].(map[string]any); !ok || rf["type"] != "json_object" {
		t.Errorf("expected json_object response format, got %v", body["response_format"])
	}
	if temp, ok := body["temperature"].(float64); !ok || temp != 0 {
		t.Errorf("expected temperature 0, got %v", body["temperature"])
	}
	messages, _ := body["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("expected system and user messages, got %d", len(messages))
	}
	if first, _ := messages[0].(map[string]any); first["role"] != "system" {
		t.Errorf("expected system prompt first, got %v", first["role"])
	}
}

func TestOpenAIProvider_Truncated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-2",
			"object":  "chat.completion",
			"created": 0,
			"model":   "gpt-4.1-mini",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "length",
				"message":       map[string]any{"role": "assistant", "content": `{"analysis":"Bro`},
			}},
			"usage": map[string]any{"prompt_tokens": 500, "completion_tokens": 800, "total_tokens": 1300},
		})
	}))
	defer server.Close()

	provider := NewOpenAIProvider("test-key", Pricing{}, option.WithBaseURL(server.URL))
	_, err := provider.Classify(context.Background(), mustEncodeJPEG(t, solidImage(10, 10, color.White)), nil)
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
	if usage := provider.GetUsage(); usage.OutputTokens != 800 {
		t.Errorf("truncated call should still be billed, got %+v", usage)
	}
}

func TestOpenAIProvider_NoRetries(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	}))
	defer server.Close()

	provider := NewOpenAIProvider("test-key", Pricing{}, option.WithBaseURL(server.URL))
	_, err := provider.Classify(context.Background(), mustEncodeJPEG(t, solidImage(10, 10, color.White)), nil)
	if err == nil {
		t.Fatal("expected error for 503")
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("expected exactly 1 upstream call, got %d", got)
	}
}

func TestUsageTracker_Concurrent(t *testing.T) {
	tracker := usageTracker{pricing: Pricing{Input: 1, Output: 1}}
	var wg sync.WaitGroup
	for range 50 {
		wg.Go(func() {
			tracker.track(10, 5)
		})
	}
	wg.Wait()

	usage := tracker.get()
	if usage.InputTokens != 500 || usage.OutputTokens != 250 {
		t.Errorf("unexpected usage %+v", usage)
	}
}
