package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestGeminiProvider(t *testing.T, handler http.HandlerFunc) *GeminiProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p, err := NewGeminiProvider(context.Background(), GeminiConfig{
		APIKey:  "test-key",
		Model:   "gemini-flash",
		BaseURL: server.URL,
	})
	if err != nil {
		t.Fatalf("NewGeminiProvider: %v", err)
	}
	return p
}

func geminiResponseBody(text, finish string) map[string]any {
	return map[string]any{
		"candidates": []map[string]any{{
			"content":      map[string]any{"role": "model", "parts": []map[string]any{{"text": text}}},
			"finishReason": finish,
		}},
		"usageMetadata": map[string]any{
			"promptTokenCount":     21,
			"candidatesTokenCount": 9,
			"totalTokenCount":      30,
		},
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

func TestGeminiProviderHappyPath(t *testing.T) {
	var got struct {
		SystemInstruction geminiContent   `json:"systemInstruction"`
		Contents          []geminiContent `json:"contents"`
		GenerationConfig  struct {
			MaxOutputTokens  int     `json:"maxOutputTokens"`
			Temperature      float64 `json:"temperature"`
			ResponseMimeType string  `json:"responseMimeType"`
		} `json:"generationConfig"`
	}
	var path, key string
	p := newTestGeminiProvider(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		key = r.Header.Get("x-goog-api-key")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(geminiResponseBody(`{"title":"x"}`, "STOP"))
	})

	resp, err := p.Generate(context.Background(), Request{
		System: "You are a tutor.",
		Messages: []Message{
			{Role: RoleUser, Content: "Hi"},
			{Role: RoleAssistant, Content: "Hello!"},
			{Role: RoleUser, Content: "Quiz me."},
		},
		JSON:        true,
		MaxTokens:   1500,
		Temperature: 0.5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != `{"title":"x"}` {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.StopReason != "end" {
		t.Errorf("stop reason = %q, want end", resp.StopReason)
	}
	if resp.Usage != (Usage{InputTokens: 21, OutputTokens: 9, TotalTokens: 30}) {
		t.Errorf("usage = %+v", resp.Usage)
	}

	if !strings.HasSuffix(path, "gemini-2.0-flash:generateContent") {
		t.Errorf("path = %q, want resolved model generateContent call", path)
	}
	if key != "test-key" {
		t.Errorf("api key header = %q", key)
	}
	if len(got.SystemInstruction.Parts) != 1 || got.SystemInstruction.Parts[0].Text != "You are a tutor." {
		t.Errorf("systemInstruction = %+v", got.SystemInstruction)
	}
	wantRoles := []string{"user", "model", "user"}
	if len(got.Contents) != len(wantRoles) {
		t.Fatalf("contents = %d, want %d", len(got.Contents), len(wantRoles))
	}
	for i, role := range wantRoles {
		if got.Contents[i].Role != role {
			t.Errorf("content %d role = %q, want %q", i, got.Contents[i].Role, role)
		}
	}
	if got.GenerationConfig.ResponseMimeType != "application/json" {
		t.Errorf("responseMimeType = %q", got.GenerationConfig.ResponseMimeType)
	}
	if got.GenerationConfig.MaxOutputTokens != 1500 || got.GenerationConfig.Temperature != 0.5 {
		t.Errorf("generationConfig = %+v", got.GenerationConfig)
	}
}

func TestGeminiProviderMaxTokens(t *testing.T) {
	p := newTestGeminiProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(geminiResponseBody("Photosynthesis is", "MAX_TOKENS"))
	})

	resp, err := p.Generate(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "Explain."}}, MaxTokens: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StopReason != "max_tokens" {
		t.Errorf("stop reason = %q, want max_tokens", resp.StopReason)
	}
}

func TestGeminiProviderEmptyCandidate(t *testing.T) {
	p := newTestGeminiProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(geminiResponseBody("", "SAFETY"))
	})

	_, err := p.Generate(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "Hi"}}, MaxTokens: 100})
	var invalid *ErrInvalidResponse
	if !errors.As(err, &invalid) {
		t.Fatalf("error = %v, want ErrInvalidResponse", err)
	}
}

func TestGeminiProviderErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		code     string
		wantRate bool
	}{
		{"rate limited", http.StatusTooManyRequests, "RESOURCE_EXHAUSTED", true},
		{"server error", http.StatusInternalServerError, "INTERNAL", false},
		{"unavailable", http.StatusServiceUnavailable, "UNAVAILABLE", false},
		{"bad request", http.StatusBadRequest, "INVALID_ARGUMENT", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestGeminiProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{"code": tt.status, "message": "nope", "status": tt.code},
				})
			})

			_, err := p.Generate(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "Hi"}}, MaxTokens: 100})
			var rl *ErrRateLimit
			var unavailable *ErrProviderUnavailable
			if tt.wantRate {
				if !errors.As(err, &rl) {
					t.Fatalf("error = %v, want ErrRateLimit", err)
				}
				return
			}
			if !errors.As(err, &unavailable) {
				t.Fatalf("error = %v, want ErrProviderUnavailable", err)
			}
			if errors.As(err, &rl) {
				t.Errorf("status %d must not be reported as a rate limit", tt.status)
			}
		})
	}
}

func TestGeminiModelMapping(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"gemini-flash", "gemini-2.0-flash"},
		{"gemini-pro", "gemini-2.0-pro"},
		{"gemini-2.5-flash", "gemini-2.5-flash"},
	}
	for _, tt := range tests {
		if got := resolveModel(tt.input, geminiModels); got != tt.expected {
			t.Errorf("resolveModel(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestNewGeminiProviderRequiresKey(t *testing.T) {
	if _, err := NewGeminiProvider(context.Background(), GeminiConfig{Model: "gemini-flash"}); err == nil {
		t.Fatal("expected error for missing API key")
	}
}
