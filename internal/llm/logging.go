package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/pavelanni/groqquest/internal/model"
)

// RequestLog records provider calls. *store.Store implements it.
type RequestLog interface {
	AppendLLMRequest(ctx context.Context, r model.LLMRequest) error
}

// LoggingProvider is a decorator that records every LLM request.
type LoggingProvider struct {
	inner Provider
	log   RequestLog
}

// WithLogging wraps a Provider with request logging. A nil log only writes
// to slog.
func WithLogging(p Provider, log RequestLog) Provider {
	return &LoggingProvider{inner: p, log: log}
}

func (l *LoggingProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	purpose := PurposeFrom(ctx)

	resp, err := l.inner.Generate(ctx, req)

	entry := model.LLMRequest{
		Purpose:   purpose,
		Model:     l.inner.ModelID(),
		LatencyMs: time.Since(start).Milliseconds(),
		Success:   err == nil,
	}
	attrs := []any{"purpose", purpose, "latency_ms", entry.LatencyMs}
	if resp != nil {
		if resp.Model != "" {
			entry.Model = resp.Model
		}
		attrs = append(attrs, "input_tokens", resp.Usage.InputTokens, "output_tokens", resp.Usage.OutputTokens)
	}
	attrs = append(attrs, "model", entry.Model)

	if err != nil {
		entry.Error = err.Error()
		slog.Warn("LLM request failed", append(attrs, "error", err)...)
	} else {
		slog.Debug("LLM request", attrs...)
	}

	if l.log != nil {
		// The request outcome stands even if the log row cannot be written.
		if logErr := l.log.AppendLLMRequest(context.WithoutCancel(ctx), entry); logErr != nil {
			slog.Warn("failed to log LLM request", "error", logErr)
		}
	}

	return resp, err
}

func (l *LoggingProvider) ModelID() string {
	return l.inner.ModelID()
}

// Ping forwards to the wrapped provider when it can ping.
func (l *LoggingProvider) Ping(ctx context.Context) error {
	if p, ok := l.inner.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
