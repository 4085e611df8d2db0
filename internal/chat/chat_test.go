package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/groqquest/internal/llm"
	"github.com/pavelanni/groqquest/internal/model"
	"github.com/pavelanni/groqquest/internal/store"
)

type env struct {
	store *store.Store
	mock  *llm.MockProvider
	orch  *Orchestrator
	alice model.Principal
	bob   model.Principal
}

func newEnv(t *testing.T, responses ...llm.MockResponse) *env {
	t.Helper()
	s, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	e := &env{store: s, mock: llm.NewMockProvider(responses...)}
	e.orch = NewOrchestrator(s, llm.NewClient(e.mock, time.Second))
	e.alice = e.principal(t, "alice")
	e.bob = e.principal(t, "bob")
	return e
}

func (e *env) principal(t *testing.T, username string) model.Principal {
	t.Helper()
	id, err := e.store.CreateUser(context.Background(), model.User{
		Username: username, DisplayName: username, PasswordHash: "x", Active: true,
	})
	require.NoError(t, err)
	return model.Principal{UserID: id, Username: username, Token: "tok-" + username}
}

// failingStore fails message writes.
type failingStore struct {
	*store.Store
}

func (failingStore) AddMessage(context.Context, string, model.Message) (*model.Message, error) {
	return nil, errors.New("database is locked")
}

// gateCompleter blocks until release is closed.
type gateCompleter struct {
	started chan struct{}
	release chan struct{}
}

func (g *gateCompleter) Complete(ctx context.Context, message, _ string) (string, error) {
	close(g.started)
	<-g.release
	return "reply to " + message, nil
}

func TestFirstMessageCreatesSession(t *testing.T) {
	e := newEnv(t, llm.MockResponse{Content: "**Explanation:** Gravity pulls masses together."})
	ctx := context.Background()

	sess, err := e.orch.EnsureSession(ctx, e.alice, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultTitle, sess.Title)
	assert.Nil(t, sess.Subject)

	res, err := e.orch.SendTurn(ctx, e.alice, sess.ID, "Explain gravity")
	require.NoError(t, err)
	require.NoError(t, res.Warning)
	assert.Equal(t, Committed, res.User.State)
	require.NotNil(t, res.Assistant)
	assert.Equal(t, Committed, res.Assistant.State)
	assert.Equal(t, model.RoleAssistant, res.Assistant.Message.Role)
	assert.Contains(t, res.Assistant.Message.Content, "Gravity pulls")

	stored, err := e.store.ListMessages(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, model.RoleUser, stored[0].Role)
	assert.Equal(t, "Explain gravity", stored[0].Content)
	assert.Equal(t, model.RoleAssistant, stored[1].Role)

	entries, err := e.orch.Transcript(ctx, e.alice, sess.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, stored[0].ID, entries[0].Message.ID)
	assert.Equal(t, stored[1].ID, entries[1].Message.ID)

	require.Equal(t, 1, e.mock.CallCount())
	assert.Equal(t, sess.ID, e.mock.Calls[0].User)
}

func TestCompletionFailureKeepsUserMessage(t *testing.T) {
	e := newEnv(t, llm.MockResponse{Err: &llm.ErrProviderUnavailable{Err: errors.New("503")}})
	ctx := context.Background()
	sess, err := e.orch.StartSession(ctx, e.alice, nil)
	require.NoError(t, err)

	res, err := e.orch.SendTurn(ctx, e.alice, sess.ID, "Explain gravity")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrUpstreamUnavailable)
	require.NotNil(t, res)
	assert.Nil(t, res.Assistant)
	assert.Equal(t, Committed, res.User.State)

	entries, err := e.orch.Transcript(ctx, e.alice, sess.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no assistant entry after a failed call")
	assert.Equal(t, "Explain gravity", entries[0].Message.Content)

	stored, err := e.store.ListMessages(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
	assert.Equal(t, 1, e.mock.CallCount(), "no retry")
}

func TestUserMessagePersistenceFailure(t *testing.T) {
	e := newEnv(t, llm.MockResponse{Content: "answer"})
	ctx := context.Background()
	sess, err := e.orch.StartSession(ctx, e.alice, nil)
	require.NoError(t, err)

	orch := NewOrchestrator(failingStore{e.store}, llm.NewClient(e.mock, time.Second))
	res, err := orch.SendTurn(ctx, e.alice, sess.ID, "Explain gravity")
	require.NoError(t, err, "storage failure is a warning")
	assert.ErrorIs(t, res.Warning, model.ErrPersistence)
	assert.Equal(t, LocalOnly, res.User.State)
	assert.True(t, strings.HasPrefix(res.User.Message.ID, "local-"))
	require.NotNil(t, res.Assistant)
	assert.Equal(t, LocalOnly, res.Assistant.State)

	entries, err := orch.Transcript(ctx, e.alice, sess.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, entry := range entries {
		assert.Equal(t, LocalOnly, entry.State)
		assert.ErrorIs(t, entry.Warning, model.ErrPersistence)
	}
}

func TestSendTurnValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	sess, err := e.orch.StartSession(ctx, e.alice, nil)
	require.NoError(t, err)

	_, err = e.orch.SendTurn(ctx, e.alice, sess.ID, "   ")
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = e.orch.SendTurn(ctx, e.alice, "", "hello")
	assert.ErrorIs(t, err, model.ErrNoSession)

	_, err = e.orch.SendTurn(ctx, e.alice, "no-such-session", "hello")
	assert.ErrorIs(t, err, model.ErrNoSession)

	_, err = e.orch.SendTurn(ctx, e.bob, sess.ID, "hello")
	assert.ErrorIs(t, err, model.ErrNoSession, "sessions are private to their owner")

	assert.Equal(t, 0, e.mock.CallCount())
}

func TestSendTurnBusy(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	sess, err := e.orch.StartSession(ctx, e.alice, nil)
	require.NoError(t, err)

	gate := &gateCompleter{started: make(chan struct{}), release: make(chan struct{})}
	orch := NewOrchestrator(e.store, gate)

	done := make(chan error, 1)
	go func() {
		_, err := orch.SendTurn(ctx, e.alice, sess.ID, "first")
		done <- err
	}()
	<-gate.started

	_, err = orch.SendTurn(ctx, e.alice, sess.ID, "second")
	assert.ErrorIs(t, err, model.ErrBusy)

	close(gate.release)
	require.NoError(t, <-done)

	entries, err := orch.Transcript(ctx, e.alice, sess.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "reply to first", entries[1].Message.Content)
}

func TestStartSessionTitles(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	physics := "  Physics "
	sess, err := e.orch.StartSession(ctx, e.alice, &physics)
	require.NoError(t, err)
	assert.Equal(t, "Physics Discussion", sess.Title)
	require.NotNil(t, sess.Subject)
	assert.Equal(t, "Physics", *sess.Subject)

	blank := " "
	sess, err = e.orch.StartSession(ctx, e.alice, &blank)
	require.NoError(t, err)
	assert.Equal(t, DefaultTitle, sess.Title)
	assert.Nil(t, sess.Subject)

	sessions, err := e.orch.Sessions(ctx, e.alice)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)

	_, err = e.orch.StartSession(ctx, model.Principal{}, nil)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestEnsureSessionForeign(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	sess, err := e.orch.StartSession(ctx, e.alice, nil)
	require.NoError(t, err)

	got, err := e.orch.EnsureSession(ctx, e.alice, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)

	_, err = e.orch.EnsureSession(ctx, e.bob, sess.ID)
	assert.ErrorIs(t, err, model.ErrNoSession)

	_, err = e.orch.Transcript(ctx, e.bob, sess.ID)
	assert.ErrorIs(t, err, model.ErrNoSession)
}

func TestTranscriptLoadsHistory(t *testing.T) {
	e := newEnv(t, llm.MockResponse{Content: "one"}, llm.MockResponse{Content: "two"})
	ctx := context.Background()
	sess, err := e.orch.StartSession(ctx, e.alice, nil)
	require.NoError(t, err)

	_, err = e.orch.SendTurn(ctx, e.alice, sess.ID, "q1")
	require.NoError(t, err)
	_, err = e.orch.SendTurn(ctx, e.alice, sess.ID, "q2")
	require.NoError(t, err)

	// A fresh orchestrator rebuilds the transcript from storage.
	fresh := NewOrchestrator(e.store, llm.NewClient(e.mock, time.Second))
	entries, err := fresh.Transcript(ctx, e.alice, sess.ID)
	require.NoError(t, err)
	var got []string
	for _, entry := range entries {
		assert.Equal(t, Committed, entry.State)
		got = append(got, entry.Message.Content)
	}
	assert.Equal(t, []string{"q1", "one", "q2", "two"}, got)
}

func TestDisposeDropsTranscripts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	sess, err := e.orch.StartSession(ctx, e.alice, nil)
	require.NoError(t, err)

	orch := NewOrchestrator(failingStore{e.store}, llm.NewClient(llm.NewMockProvider(llm.MockResponse{Content: "hi"}), time.Second))
	_, err = orch.SendTurn(ctx, e.alice, sess.ID, "hello")
	require.NoError(t, err)

	entries, err := orch.Transcript(ctx, e.alice, sess.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	orch.Dispose(e.alice.UserID)
	entries, err = orch.Transcript(ctx, e.alice, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, entries, "unsaved entries are gone after sign-out")
}

func TestRetainDropsTranscriptsOfExpiredUsers(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	aliceSess, err := e.orch.StartSession(ctx, e.alice, nil)
	require.NoError(t, err)
	bobSess, err := e.orch.StartSession(ctx, e.bob, nil)
	require.NoError(t, err)

	orch := NewOrchestrator(failingStore{e.store}, llm.NewClient(llm.NewMockProvider(
		llm.MockResponse{Content: "hi alice"}, llm.MockResponse{Content: "hi bob"},
	), time.Second))
	_, err = orch.SendTurn(ctx, e.alice, aliceSess.ID, "hello")
	require.NoError(t, err)
	_, err = orch.SendTurn(ctx, e.bob, bobSess.ID, "hello")
	require.NoError(t, err)

	dropped := orch.Retain(func(userID string) bool { return userID == e.bob.UserID })
	assert.Equal(t, 1, dropped)

	entries, err := orch.Transcript(ctx, e.alice, aliceSess.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
	entries, err = orch.Transcript(ctx, e.bob, bobSess.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "a user with a live session keeps unsaved entries")
}

func TestEntryStateString(t *testing.T) {
	assert.Equal(t, "local", LocalOnly.String())
	assert.Equal(t, "committed", Committed.String())
}
