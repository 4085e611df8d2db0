package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pavelanni/groqquest/internal/llm/prompts"
	"github.com/pavelanni/groqquest/internal/model"
)

// FallbackReply is returned when the model answers with no text, whether
// the provider sent a blank message or no choices at all.
const FallbackReply = "I apologize, but I could not generate a response. Please try again."

// Purpose labels for request logging.
const (
	PurposeChat = "chat"
	PurposeQuiz = "quiz"
)

const (
	maxTokens   = 1500
	temperature = 0.7
)

// Pinger is implemented by providers that can check connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Client issues the two completions the app needs: tutor replies and
// raw quiz JSON. Every failure wraps model.ErrUpstreamUnavailable.
type Client struct {
	provider Provider
	timeout  time.Duration
}

// NewClient creates a Client. A non-positive timeout leaves the caller's
// deadline in charge.
func NewClient(p Provider, timeout time.Duration) *Client {
	return &Client{provider: p, timeout: timeout}
}

// ModelID returns the configured model.
func (c *Client) ModelID() string {
	return c.provider.ModelID()
}

// Complete asks the tutor to answer message. sessionID tags the request
// for providers that accept an end-user identifier.
func (c *Client) Complete(ctx context.Context, message, sessionID string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", fmt.Errorf("%w: empty message", model.ErrValidation)
	}
	system, err := prompts.ChatSystem()
	if err != nil {
		return "", err
	}

	resp, err := c.generate(WithPurpose(ctx, PurposeChat), Request{
		System:      system,
		Messages:    []Message{{Role: RoleUser, Content: prompts.ChatUser(message)}},
		User:        sessionID,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	var noContent *ErrInvalidResponse
	if errors.As(err, &noContent) {
		return FallbackReply, nil
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Content) == "" {
		return FallbackReply, nil
	}
	return resp.Content, nil
}

// QuizRaw asks for a quiz on topic and returns the model's text unparsed.
func (c *Client) QuizRaw(ctx context.Context, topic string) ([]byte, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, fmt.Errorf("%w: empty topic", model.ErrValidation)
	}
	system, user, err := prompts.BuildQuizPrompts(topic)
	if err != nil {
		return nil, err
	}

	resp, err := c.generate(WithPurpose(ctx, PurposeQuiz), Request{
		System:      system,
		Messages:    []Message{{Role: RoleUser, Content: user}},
		JSON:        true,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return nil, err
	}
	return []byte(resp.Content), nil
}

// Ping checks provider connectivity when the provider supports it.
func (c *Client) Ping(ctx context.Context) error {
	p, ok := c.provider.(Pinger)
	if !ok {
		return nil
	}
	if err := p.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", model.ErrUpstreamUnavailable, err)
	}
	return nil
}

func (c *Client) generate(ctx context.Context, req Request) (*Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	resp, err := c.provider.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrUpstreamUnavailable, err)
	}
	return resp, nil
}
