package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/groqquest/internal/model"
)

// Session titles.
const (
	DefaultTitle  = "New Chat"
	subjectSuffix = " Discussion"
)

// Store persists chat sessions and messages. *store.Store implements it.
type Store interface {
	CreateChatSession(ctx context.Context, userID, title string, subject *string) (*model.ChatSession, error)
	GetChatSession(ctx context.Context, userID, id string) (*model.ChatSession, error)
	ListChatSessions(ctx context.Context, userID string) ([]model.ChatSession, error)
	AddMessage(ctx context.Context, userID string, msg model.Message) (*model.Message, error)
	ListMessages(ctx context.Context, sessionID string) ([]model.Message, error)
}

// Completer answers a learner message. *llm.Client implements it.
type Completer interface {
	Complete(ctx context.Context, message, sessionID string) (string, error)
}

// TurnResult is the outcome of one chat turn. Assistant is nil when the
// completion call failed.
type TurnResult struct {
	User      Entry
	Assistant *Entry
	Warning   error
}

// Orchestrator runs chat turns: store the user message, ask the tutor,
// store the reply. At most one turn per session is in flight.
type Orchestrator struct {
	store Store
	llm   Completer
	now   func() time.Time

	mu          sync.Mutex
	inFlight    map[string]bool
	transcripts map[string]*Transcript
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(store Store, llm Completer) *Orchestrator {
	return &Orchestrator{
		store:       store,
		llm:         llm,
		now:         func() time.Time { return time.Now().UTC() },
		inFlight:    make(map[string]bool),
		transcripts: make(map[string]*Transcript),
	}
}

// SessionTitle names a new session after its subject.
func SessionTitle(subject *string) string {
	if subject == nil || strings.TrimSpace(*subject) == "" {
		return DefaultTitle
	}
	return strings.TrimSpace(*subject) + subjectSuffix
}

// StartSession creates a new chat session for p.
func (o *Orchestrator) StartSession(ctx context.Context, p model.Principal, subject *string) (*model.ChatSession, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: no signed-in user", model.ErrValidation)
	}
	if subject != nil {
		s := strings.TrimSpace(*subject)
		subject = &s
		if s == "" {
			subject = nil
		}
	}
	sess, err := o.store.CreateChatSession(ctx, p.UserID, SessionTitle(subject), subject)
	if err != nil {
		return nil, &model.PersistenceError{Op: "chat session", Err: err}
	}
	slog.Info("chat session started", "user", p.Username, "session", sess.ID)
	return sess, nil
}

// EnsureSession returns the session with the given id, or starts a new one
// when id is empty. An id that does not belong to p is ErrNoSession.
func (o *Orchestrator) EnsureSession(ctx context.Context, p model.Principal, id string) (*model.ChatSession, error) {
	if id == "" {
		return o.StartSession(ctx, p, nil)
	}
	return o.session(ctx, p, id)
}

// Sessions lists p's sessions, newest first.
func (o *Orchestrator) Sessions(ctx context.Context, p model.Principal) ([]model.ChatSession, error) {
	sessions, err := o.store.ListChatSessions(ctx, p.UserID)
	if err != nil {
		return nil, &model.PersistenceError{Op: "list chat sessions", Err: err}
	}
	return sessions, nil
}

// Transcript returns the visible conversation of a session.
func (o *Orchestrator) Transcript(ctx context.Context, p model.Principal, sessionID string) ([]Entry, error) {
	if _, err := o.session(ctx, p, sessionID); err != nil {
		return nil, err
	}
	tr, err := o.transcript(ctx, p, sessionID)
	if err != nil {
		return nil, err
	}
	return tr.Entries(), nil
}

// SendTurn runs one chat turn. The user message always stays in the
// transcript. If the completion fails the error wraps
// model.ErrUpstreamUnavailable and no assistant entry is added.
func (o *Orchestrator) SendTurn(ctx context.Context, p model.Principal, sessionID, text string) (*TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: message is empty", model.ErrValidation)
	}
	if _, err := o.session(ctx, p, sessionID); err != nil {
		return nil, err
	}
	if !o.acquire(sessionID) {
		return nil, model.ErrBusy
	}
	defer o.release(sessionID)

	// The turn completes even if the client goes away.
	ctx = context.WithoutCancel(ctx)

	tr, err := o.transcript(ctx, p, sessionID)
	if err != nil {
		return nil, err
	}

	res := &TurnResult{}
	idx := tr.appendLocal(o.localMessage(sessionID, model.RoleUser, text))
	stored, err := o.store.AddMessage(ctx, p.UserID, model.Message{SessionID: sessionID, Role: model.RoleUser, Content: text})
	if err != nil {
		res.Warning = &model.PersistenceError{Op: "user message", Err: err}
		slog.Warn("failed to save chat message", "user", p.Username, "session", sessionID, "error", err)
		res.User = tr.keepLocal(idx, res.Warning)
	} else {
		res.User = tr.commit(idx, *stored)
	}

	reply, err := o.llm.Complete(ctx, text, sessionID)
	if err != nil {
		slog.Warn("chat completion failed", "user", p.Username, "session", sessionID, "error", err)
		if !errors.Is(err, model.ErrUpstreamUnavailable) {
			err = fmt.Errorf("%w: %w", model.ErrUpstreamUnavailable, err)
		}
		return res, err
	}

	idx = tr.appendLocal(o.localMessage(sessionID, model.RoleAssistant, reply))
	var assistant Entry
	stored, err = o.store.AddMessage(ctx, p.UserID, model.Message{SessionID: sessionID, Role: model.RoleAssistant, Content: reply})
	if err != nil {
		warning := &model.PersistenceError{Op: "assistant message", Err: err}
		slog.Warn("failed to save chat reply", "user", p.Username, "session", sessionID, "error", err)
		assistant = tr.keepLocal(idx, warning)
		if res.Warning == nil {
			res.Warning = warning
		}
	} else {
		assistant = tr.commit(idx, *stored)
	}
	res.Assistant = &assistant
	return res, nil
}

// Dispose drops the cached transcripts of a user on sign-out.
func (o *Orchestrator) Dispose(userID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for id, tr := range o.transcripts {
		if tr.userID == userID {
			delete(o.transcripts, id)
		}
	}
}

// Retain drops cached transcripts of users failing keep and reports how many
// transcripts were dropped.
func (o *Orchestrator) Retain(keep func(userID string) bool) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for id, tr := range o.transcripts {
		if !keep(tr.userID) {
			delete(o.transcripts, id)
			n++
		}
	}
	return n
}

func (o *Orchestrator) session(ctx context.Context, p model.Principal, id string) (*model.ChatSession, error) {
	if !p.Valid() || id == "" {
		return nil, model.ErrNoSession
	}
	sess, err := o.store.GetChatSession(ctx, p.UserID, id)
	if err != nil {
		return nil, &model.PersistenceError{Op: "get chat session", Err: err}
	}
	if sess == nil {
		return nil, model.ErrNoSession
	}
	return sess, nil
}

// transcript returns the cached transcript, loading it from storage on
// first use.
func (o *Orchestrator) transcript(ctx context.Context, p model.Principal, sessionID string) (*Transcript, error) {
	o.mu.Lock()
	tr, ok := o.transcripts[sessionID]
	o.mu.Unlock()
	if ok {
		return tr, nil
	}

	stored, err := o.store.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, &model.PersistenceError{Op: "list messages", Err: err}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if tr, ok := o.transcripts[sessionID]; ok {
		return tr, nil
	}
	tr = newTranscript(p.UserID, stored)
	o.transcripts[sessionID] = tr
	return tr, nil
}

func (o *Orchestrator) localMessage(sessionID string, role model.Role, content string) model.Message {
	return model.Message{
		ID:        "local-" + uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: o.now(),
	}
}

func (o *Orchestrator) acquire(sessionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inFlight[sessionID] {
		return false
	}
	o.inFlight[sessionID] = true
	return true
}

func (o *Orchestrator) release(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, sessionID)
}
