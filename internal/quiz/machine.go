package quiz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/pavelanni/groqquest/internal/model"
)

// State is the phase of a quiz session.
type State int

const (
	StateIdle State = iota
	StateGenerating
	StateAnswering
	StateSubmitted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateGenerating:
		return "generating"
	case StateAnswering:
		return "answering"
	case StateSubmitted:
		return "submitted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// QuizGenerator produces quizzes. *Generator implements it.
type QuizGenerator interface {
	Generate(ctx context.Context, p model.Principal, topic string) (*GenerateResult, error)
}

// AttemptStore persists finished attempts. *store.Store implements it.
type AttemptStore interface {
	CreateAttempt(ctx context.Context, userID string, a model.Attempt) (*model.Attempt, error)
	UpsertStudyTopic(ctx context.Context, t model.StudyTopic) error
}

// Snapshot is a copy of the machine state for rendering.
type Snapshot struct {
	State   State
	Index   int
	Topic   string
	Quiz    *model.Quiz
	Answers model.AnswerSet
	Result  *Result
	Err     error
	Warning error
}

// Total returns the number of questions in the current quiz.
func (s Snapshot) Total() int {
	if s.Quiz == nil {
		return 0
	}
	return len(s.Quiz.Questions)
}

// IsLast reports whether the current question is the last one.
func (s Snapshot) IsLast() bool {
	return s.State == StateAnswering && s.Index == s.Total()-1
}

// CanAdvance reports whether next or finish is allowed.
func (s Snapshot) CanAdvance() bool {
	return s.State == StateAnswering && s.Answers.Has(s.Index)
}

// CanGoBack reports whether previous is allowed.
func (s Snapshot) CanGoBack() bool {
	return s.State == StateAnswering && s.Index > 0
}

// Selected returns the recorded option for the current question, or -1.
func (s Snapshot) Selected() int {
	if v, ok := s.Answers[s.Index]; ok {
		return v
	}
	return -1
}

// Machine drives one user's quiz from topic entry to review.
// All methods are safe for concurrent use.
type Machine struct {
	principal model.Principal
	gen       QuizGenerator
	store     AttemptStore

	mu       sync.Mutex
	state    State
	index    int
	topic    string
	quiz     *model.Quiz
	answers  model.AnswerSet
	result   *Result
	err      error
	warning  error
	epoch    uint64
	disposed bool
}

// NewMachine creates an idle machine acting for p.
func NewMachine(p model.Principal, gen QuizGenerator, store AttemptStore) *Machine {
	return &Machine{principal: p, gen: gen, store: store}
}

var errDisposed = fmt.Errorf("%w: quiz session closed", model.ErrGuard)

// Submit requests a quiz on topic and blocks until it is ready. The
// generation outlives ctx cancellation so the result is applied even if the
// caller goes away. A second Submit while generating returns ErrBusy.
func (m *Machine) Submit(ctx context.Context, topic string) error {
	topic = strings.TrimSpace(topic)

	m.mu.Lock()
	switch {
	case m.disposed:
		m.mu.Unlock()
		return errDisposed
	case m.state == StateGenerating:
		m.mu.Unlock()
		return model.ErrBusy
	case m.state != StateIdle:
		m.mu.Unlock()
		return fmt.Errorf("%w: submit from %s", model.ErrGuard, m.state)
	case topic == "":
		m.mu.Unlock()
		return fmt.Errorf("%w: topic is empty", model.ErrValidation)
	}
	m.state = StateGenerating
	m.topic = topic
	m.err = nil
	m.warning = nil
	epoch := m.epoch
	m.mu.Unlock()

	res, err := m.gen.Generate(context.WithoutCancel(ctx), m.principal, topic)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disposed || m.epoch != epoch {
		slog.Debug("dropping quiz generated after session closed", "user", m.principal.Username)
		return errDisposed
	}
	if err != nil {
		m.state = StateIdle
		m.quiz = nil
		m.err = err
		return err
	}
	m.state = StateAnswering
	m.quiz = res.Quiz
	m.answers = model.AnswerSet{}
	m.index = 0
	m.result = nil
	m.warning = res.Warning
	return nil
}

// Select records option for the current question. It overwrites any
// earlier choice and never advances.
func (m *Machine) Select(option int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateAnswering {
		return fmt.Errorf("%w: select from %s", model.ErrGuard, m.state)
	}
	if option < 0 || option >= len(m.quiz.Questions[m.index].Options) {
		return fmt.Errorf("%w: option %d out of range", model.ErrValidation, option)
	}
	m.answers[m.index] = option
	return nil
}

// Next moves to the following question. On the last question it finishes
// the quiz.
func (m *Machine) Next(ctx context.Context) error {
	m.mu.Lock()
	if err := m.advanceGuard("next"); err != nil {
		m.mu.Unlock()
		return err
	}
	if m.index < len(m.quiz.Questions)-1 {
		m.index++
		m.mu.Unlock()
		return nil
	}
	return m.finishLocked(ctx)
}

// Previous moves back one question. Answers are kept.
func (m *Machine) Previous() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateAnswering || m.index == 0 {
		return fmt.Errorf("%w: previous from %s at %d", model.ErrGuard, m.state, m.index)
	}
	m.index--
	return nil
}

// Finish scores the quiz and stores the attempt. It is allowed only on the
// last question once that question is answered. A storage failure leaves
// the machine in review with a warning.
func (m *Machine) Finish(ctx context.Context) error {
	m.mu.Lock()
	if err := m.advanceGuard("finish"); err != nil {
		m.mu.Unlock()
		return err
	}
	if m.index != len(m.quiz.Questions)-1 {
		m.mu.Unlock()
		return fmt.Errorf("%w: finish before last question", model.ErrGuard)
	}
	return m.finishLocked(ctx)
}

// Restart discards the quiz and answers. It is allowed from review, or
// from idle to clear an error.
func (m *Machine) Restart() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateSubmitted && m.state != StateIdle {
		return fmt.Errorf("%w: restart from %s", model.ErrGuard, m.state)
	}
	m.reset()
	return nil
}

// Dispose tears the machine down on sign-out. A generation still in flight
// is dropped when it returns.
func (m *Machine) Dispose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disposed = true
	m.reset()
}

// Snapshot returns a copy of the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Snapshot{
		State:   m.state,
		Index:   m.index,
		Topic:   m.topic,
		Quiz:    m.quiz,
		Answers: m.answers.Clone(),
		Err:     m.err,
		Warning: m.warning,
	}
	if m.result != nil {
		r := *m.result
		r.PerQuestion = append([]bool(nil), m.result.PerQuestion...)
		s.Result = &r
	}
	return s
}

func (m *Machine) advanceGuard(op string) error {
	if m.state != StateAnswering {
		return fmt.Errorf("%w: %s from %s", model.ErrGuard, op, m.state)
	}
	if !m.answers.Has(m.index) {
		return fmt.Errorf("%w: question %d is unanswered", model.ErrGuard, m.index+1)
	}
	return nil
}

// finishLocked enters review and stores the attempt. It is called with mu
// held and releases it before touching storage.
func (m *Machine) finishLocked(ctx context.Context) error {
	result := Score(m.quiz, m.answers)
	m.result = &result
	m.state = StateSubmitted
	quiz := m.quiz
	answers := m.answers.Clone()
	topic := m.topic
	epoch := m.epoch
	m.mu.Unlock()

	warning := m.persistAttempt(context.WithoutCancel(ctx), quiz, topic, answers, result)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch == epoch && warning != nil {
		m.warning = warning
	}
	return nil
}

func (m *Machine) persistAttempt(ctx context.Context, q *model.Quiz, topic string, answers model.AnswerSet, r Result) error {
	if q.ID == "" {
		return &model.PersistenceError{Op: "attempt", Err: errors.New("quiz was not saved")}
	}
	_, err := m.store.CreateAttempt(ctx, m.principal.UserID, model.Attempt{
		QuizID:         q.ID,
		Answers:        answers,
		Score:          r.Score,
		TotalQuestions: r.Total,
	})
	if err != nil {
		slog.Warn("failed to save attempt", "user", m.principal.Username, "quiz", q.ID, "error", err)
		return &model.PersistenceError{Op: "attempt", Err: err}
	}

	err = m.store.UpsertStudyTopic(ctx, model.StudyTopic{
		UserID:  m.principal.UserID,
		Topic:   topic,
		Subject: q.Subject,
		Mastery: float64(r.Score) / float64(r.Total),
	})
	if err != nil {
		slog.Warn("failed to update study topic", "user", m.principal.Username, "topic", topic, "error", err)
		return &model.PersistenceError{Op: "study topic", Err: err}
	}
	return nil
}

// reset returns to idle. Bumping the epoch orphans any pending write-back.
func (m *Machine) reset() {
	m.epoch++
	m.state = StateIdle
	m.index = 0
	m.quiz = nil
	m.answers = nil
	m.result = nil
	m.err = nil
	m.warning = nil
}
