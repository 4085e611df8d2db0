package llm

import "context"

// Provider is the core abstraction for LLM interaction.
type Provider interface {
	// Generate sends one request to the model and returns its text output.
	Generate(ctx context.Context, req Request) (*Response, error)

	// ModelID returns the model identifier this provider is configured to use.
	ModelID() string
}

// Request describes what to send to the LLM.
type Request struct {
	// System is the system prompt.
	System string

	// Messages is the conversation. Chat turns and quiz requests both send
	// a single user message.
	Messages []Message

	// JSON asks the provider for a JSON object response when it supports it.
	// The caller still validates the output.
	JSON bool

	// User is an opaque end-user or conversation tag forwarded to providers
	// that accept one.
	User string

	MaxTokens   int
	Temperature float64
}

// Message represents a single message in the conversation.
type Message struct {
	Role    Role
	Content string
}

// Role is the message sender role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Response holds the LLM's output.
type Response struct {
	// Content is the raw text of the first choice.
	Content string

	Usage Usage

	// Model is the actual model that served the request.
	Model string

	// StopReason is normalized to "end" or "max_tokens".
	StopReason string
}

// Usage tracks token consumption for a single request.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// resolveModel maps a friendly model name to a provider model ID.
func resolveModel(name string, models map[string]string) string {
	if id, ok := models[name]; ok {
		return id
	}
	return name
}
