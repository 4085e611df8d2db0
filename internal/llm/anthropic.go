package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

var anthropicModels = map[string]string{
	"claude-sonnet": "claude-sonnet-4-20250514",
	"claude-haiku":  "claude-haiku-4-5-20251001",
}

// AnthropicProvider talks to the Anthropic Messages API.
type AnthropicProvider struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	return &AnthropicProvider{
		client: &client,
		model:  resolveModel(cfg.Model, anthropicModels),
	}, nil
}

// Generate sends the request as a Messages API call. Anthropic has no JSON
// mode; quiz prompts ask for bare JSON and the parser extracts it from text.
func (p *AnthropicProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	msg, err := p.client.Messages.New(ctx, p.messageParams(req))
	if err != nil {
		return nil, classifyAnthropicError(err)
	}

	text := joinTextBlocks(msg.Content)
	if strings.TrimSpace(text) == "" {
		return nil, &ErrInvalidResponse{Err: fmt.Errorf("anthropic reply has no text blocks (stop reason %q)", msg.StopReason)}
	}

	in, out := int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens)
	return &Response{
		Content:    text,
		Usage:      Usage{InputTokens: in, OutputTokens: out, TotalTokens: in + out},
		Model:      string(msg.Model),
		StopReason: anthropicStopReason(msg.StopReason),
	}, nil
}

func (p *AnthropicProvider) ModelID() string {
	return p.model
}

func (p *AnthropicProvider) messageParams(req Request) anthropic.MessageNewParams {
	turns := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == RoleAssistant {
			turns = append(turns, anthropic.NewAssistantMessage(block))
		} else {
			turns = append(turns, anthropic.NewUserMessage(block))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  turns,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	return params
}

// joinTextBlocks concatenates every text block, skipping tool and thinking
// blocks.
func joinTextBlocks(blocks []anthropic.ContentBlockUnion) string {
	var sb strings.Builder
	for _, b := range blocks {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

func anthropicStopReason(r anthropic.StopReason) string {
	if r == anthropic.StopReasonMaxTokens {
		return "max_tokens"
	}
	return "end"
}

// classifyAnthropicError sorts SDK failures into rate limits and outages.
// A 429 carries the server's Retry-After hint when one was sent.
func classifyAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return &ErrProviderUnavailable{Err: err}
	}
	switch {
	case apiErr.StatusCode == http.StatusTooManyRequests:
		rl := &ErrRateLimit{Err: err}
		if apiErr.Response != nil {
			if secs, convErr := strconv.Atoi(apiErr.Response.Header.Get("Retry-After")); convErr == nil {
				rl.RetryAfter = time.Duration(secs) * time.Second
			}
		}
		return rl
	case apiErr.StatusCode >= http.StatusInternalServerError:
		return &ErrProviderUnavailable{Err: err}
	default:
		return &ErrProviderUnavailable{Err: fmt.Errorf("anthropic rejected request (status %d): %w", apiErr.StatusCode, err)}
	}
}
