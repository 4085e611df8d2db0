package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

func newTestAnthropicProvider(t *testing.T, handler http.HandlerFunc) *AnthropicProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := anthropic.NewClient(
		option.WithAPIKey("test-key"),
		option.WithBaseURL(server.URL),
		option.WithMaxRetries(0),
	)
	return &AnthropicProvider{client: &client, model: anthropicModels["claude-haiku"]}
}

func anthropicMessageBody(stop string, texts ...string) map[string]any {
	content := make([]map[string]any, 0, len(texts))
	for _, text := range texts {
		content = append(content, map[string]any{"type": "text", "text": text})
	}
	return map[string]any{
		"id":          "msg_test",
		"type":        "message",
		"role":        "assistant",
		"content":     content,
		"model":       "claude-haiku-4-5-20251001",
		"stop_reason": stop,
		"usage":       map[string]any{"input_tokens": 30, "output_tokens": 12},
	}
}

func TestAnthropicProviderHappyPath(t *testing.T) {
	var got struct {
		Model     string `json:"model"`
		MaxTokens int    `json:"max_tokens"`
		System    []struct {
			Text string `json:"text"`
		} `json:"system"`
		Messages []struct {
			Role    string `json:"role"`
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"messages"`
	}
	p := newTestAnthropicProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %q, want /v1/messages", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(anthropicMessageBody("max_tokens", `{"title":`, `"x"}`))
	})

	resp, err := p.Generate(context.Background(), Request{
		System: "You are a tutor.",
		Messages: []Message{
			{Role: RoleUser, Content: "Hi"},
			{Role: RoleAssistant, Content: "Hello!"},
			{Role: RoleUser, Content: "Quiz me."},
		},
		MaxTokens:   1500,
		Temperature: 0.7,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != `{"title":"x"}` {
		t.Errorf("content = %q, want text blocks joined", resp.Content)
	}
	if resp.StopReason != "max_tokens" {
		t.Errorf("stop reason = %q, want max_tokens", resp.StopReason)
	}
	if resp.Usage.InputTokens != 30 || resp.Usage.OutputTokens != 12 || resp.Usage.TotalTokens != 42 {
		t.Errorf("usage = %+v", resp.Usage)
	}

	if got.Model != "claude-haiku-4-5-20251001" || got.MaxTokens != 1500 {
		t.Errorf("model/max_tokens = %q/%d", got.Model, got.MaxTokens)
	}
	if len(got.System) != 1 || got.System[0].Text != "You are a tutor." {
		t.Errorf("system = %+v", got.System)
	}
	wantRoles := []string{"user", "assistant", "user"}
	if len(got.Messages) != len(wantRoles) {
		t.Fatalf("messages = %d, want %d", len(got.Messages), len(wantRoles))
	}
	for i, role := range wantRoles {
		if got.Messages[i].Role != role {
			t.Errorf("message %d role = %q, want %q", i, got.Messages[i].Role, role)
		}
	}
	if got.Messages[2].Content[0].Text != "Quiz me." {
		t.Errorf("last message = %+v", got.Messages[2])
	}
}

func TestAnthropicProviderEndTurn(t *testing.T) {
	p := newTestAnthropicProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(anthropicMessageBody("end_turn", "Photosynthesis turns light into sugar."))
	})

	resp, err := p.Generate(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "Explain."}}, MaxTokens: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StopReason != "end" {
		t.Errorf("stop reason = %q, want end", resp.StopReason)
	}
}

func TestAnthropicProviderNoText(t *testing.T) {
	p := newTestAnthropicProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(anthropicMessageBody("end_turn"))
	})

	_, err := p.Generate(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "Hi"}}, MaxTokens: 100})
	var invalid *ErrInvalidResponse
	if !errors.As(err, &invalid) {
		t.Fatalf("error = %v, want ErrInvalidResponse", err)
	}
}

func TestAnthropicProviderErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		errType   string
		wantRate  bool
		wantAfter time.Duration
	}{
		{"rate limited", http.StatusTooManyRequests, "rate_limit_error", true, 7 * time.Second},
		{"server error", http.StatusInternalServerError, "api_error", false, 0},
		{"overloaded", 529, "overloaded_error", false, 0},
		{"bad request", http.StatusBadRequest, "invalid_request_error", false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestAnthropicProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "7")
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(map[string]any{
					"type":  "error",
					"error": map[string]any{"type": tt.errType, "message": "nope"},
				})
			})

			_, err := p.Generate(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "Hi"}}, MaxTokens: 100})
			var rl *ErrRateLimit
			var unavailable *ErrProviderUnavailable
			switch {
			case tt.wantRate:
				if !errors.As(err, &rl) {
					t.Fatalf("error = %v, want ErrRateLimit", err)
				}
				if rl.RetryAfter != tt.wantAfter {
					t.Errorf("RetryAfter = %s, want %s", rl.RetryAfter, tt.wantAfter)
				}
			default:
				if !errors.As(err, &unavailable) {
					t.Fatalf("error = %v, want ErrProviderUnavailable", err)
				}
				if errors.As(err, &rl) {
					t.Errorf("status %d must not be reported as a rate limit", tt.status)
				}
			}
		})
	}
}

func TestAnthropicModelMapping(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"claude-haiku", "claude-haiku-4-5-20251001"},
		{"claude-sonnet", "claude-sonnet-4-20250514"},
		{"claude-opus-4-1", "claude-opus-4-1"},
	}
	for _, tt := range tests {
		if got := resolveModel(tt.input, anthropicModels); got != tt.expected {
			t.Errorf("resolveModel(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestNewAnthropicProviderRequiresKey(t *testing.T) {
	if _, err := NewAnthropicProvider(AnthropicConfig{Model: "claude-haiku"}); err == nil {
		t.Fatal("expected error for missing API key")
	}
	p, err := NewAnthropicProvider(AnthropicConfig{APIKey: "k", Model: "claude-sonnet"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ModelID() != "claude-sonnet-4-20250514" {
		t.Errorf("ModelID() = %q", p.ModelID())
	}
}
