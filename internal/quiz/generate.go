package quiz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/groqquest/internal/model"
)

// Source returns the raw model output for a quiz request.
// *llm.Client implements it.
type Source interface {
	QuizRaw(ctx context.Context, topic string) ([]byte, error)
}

// QuizStore persists generated quizzes. *store.Store implements it.
type QuizStore interface {
	CreateQuiz(ctx context.Context, userID string, q model.Quiz) (*model.Quiz, error)
}

// UpstreamError reports a failed or timed out quiz request.
type UpstreamError struct {
	Topic string
	Err   error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("generate quiz on %q: %v", e.Topic, e.Err)
}

func (e *UpstreamError) Unwrap() []error {
	return []error{model.ErrUpstreamUnavailable, e.Err}
}

// GenerateResult is a usable quiz plus an optional persistence warning.
type GenerateResult struct {
	Quiz    *model.Quiz
	Warning error
}

// Generator turns a topic into a validated, stored quiz.
type Generator struct {
	source Source
	store  QuizStore
}

// NewGenerator creates a Generator.
func NewGenerator(source Source, store QuizStore) *Generator {
	return &Generator{source: source, store: store}
}

// Generate issues exactly one quiz request for topic. A storage failure
// does not fail generation: the quiz is returned with a Warning.
func (g *Generator) Generate(ctx context.Context, p model.Principal, topic string) (*GenerateResult, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, fmt.Errorf("%w: topic is empty", model.ErrValidation)
	}
	if !p.Valid() {
		return nil, fmt.Errorf("%w: no signed-in user", model.ErrValidation)
	}

	raw, err := g.source.QuizRaw(ctx, topic)
	if err != nil {
		if errors.Is(err, model.ErrValidation) {
			return nil, err
		}
		return nil, &UpstreamError{Topic: topic, Err: err}
	}

	q, err := Parse(raw)
	if err != nil {
		slog.Warn("quiz response rejected", "topic", topic, "error", err)
		return nil, err
	}
	q.Topic = topic
	if q.Title == "" {
		q.Title = topic
	}

	stored, err := g.store.CreateQuiz(ctx, p.UserID, *q)
	if err != nil {
		slog.Warn("failed to save quiz", "user", p.Username, "topic", topic, "error", err)
		return &GenerateResult{Quiz: q, Warning: &model.PersistenceError{Op: "quiz", Err: err}}, nil
	}
	return &GenerateResult{Quiz: stored}, nil
}
