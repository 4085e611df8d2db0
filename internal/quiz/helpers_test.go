package quiz

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/pavelanni/groqquest/internal/model"
)

// quizDoc builds a well-formed quiz payload. Question i has correct answer i%4.
func quizDoc() map[string]any {
	questions := make([]any, model.QuizLength)
	for i := range questions {
		questions[i] = map[string]any{
			"question":       fmt.Sprintf("Question %d?", i+1),
			"options":        []any{"A", "B", "C", "D"},
			"correct_answer": i % 4,
			"explanation":    fmt.Sprintf("Because %d.", i+1),
		}
	}
	return map[string]any{
		"title":     "Photosynthesis Basics",
		"subject":   "Biology",
		"questions": questions,
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func question(doc map[string]any, i int) map[string]any {
	return doc["questions"].([]any)[i].(map[string]any)
}

type fakeStore struct {
	mu       sync.Mutex
	quizzes  []model.Quiz
	attempts []model.Attempt
	topics   []model.StudyTopic

	quizErr    error
	attemptErr error
}

func (f *fakeStore) CreateQuiz(_ context.Context, userID string, q model.Quiz) (*model.Quiz, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.quizErr != nil {
		return nil, f.quizErr
	}
	q.ID = fmt.Sprintf("quiz-%d", len(f.quizzes)+1)
	q.UserID = userID
	f.quizzes = append(f.quizzes, q)
	return &q, nil
}

func (f *fakeStore) CreateAttempt(_ context.Context, userID string, a model.Attempt) (*model.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attemptErr != nil {
		return nil, f.attemptErr
	}
	a.ID = fmt.Sprintf("attempt-%d", len(f.attempts)+1)
	a.UserID = userID
	f.attempts = append(f.attempts, a)
	return &a, nil
}

func (f *fakeStore) UpsertStudyTopic(_ context.Context, t model.StudyTopic) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, t)
	return nil
}

func (f *fakeStore) quizCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.quizzes)
}

var testPrincipal = model.Principal{UserID: "user-1", Username: "alice", Token: "tok"}
