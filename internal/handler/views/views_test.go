package views

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/a-h/templ"

	"github.com/pavelanni/groqquest/internal/chat"
	appI18n "github.com/pavelanni/groqquest/internal/i18n"
	"github.com/pavelanni/groqquest/internal/model"
	"github.com/pavelanni/groqquest/internal/quiz"
)

func renderString(t *testing.T, ctx context.Context, c templ.Component) string {
	t.Helper()
	var buf bytes.Buffer
	if err := c.Render(ctx, &buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	return buf.String()
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	ctx := model.ContextWithBasePath(context.Background(), "/en")
	ctx = model.ContextWithCSRFToken(ctx, "tok123")
	return model.ContextWithUser(ctx, &model.User{ID: "u1", DisplayName: "Ada", Role: model.UserRoleAdmin})
}

func sampleQuiz() *model.Quiz {
	q := &model.Quiz{ID: "q1", Title: "Planets", Subject: "Astronomy"}
	for _, p := range []string{"Largest planet?", "Hottest planet?"} {
		q.Questions = append(q.Questions, model.Question{
			Prompt:       p,
			Options:      []string{"Mercury", "Venus", "Earth", "Jupiter"},
			CorrectIndex: 3,
			Explanation:  "See the textbook.",
		})
	}
	return q
}

func TestLayoutHelpers(t *testing.T) {
	ctx := testCtx(t)
	out := renderString(t, ctx, LoginPage("bad login"))

	for _, want := range []string{`action="/en/login"`, `value="tok123"`, "bad login", "GroqQuest"} {
		if !strings.Contains(out, want) {
			t.Errorf("login page missing %q", want)
		}
	}
}

func TestQuizPageAnswering(t *testing.T) {
	ctx := testCtx(t)
	snap := quiz.Snapshot{
		State:   quiz.StateAnswering,
		Index:   1,
		Quiz:    sampleQuiz(),
		Answers: model.AnswerSet{0: 3},
	}
	out := renderString(t, ctx, QuizPage(QuizData{Snap: snap}))

	for _, want := range []string{"Hottest planet?", "Question 2 of 2", "D. Jupiter", "/en/quiz/submit"} {
		if !strings.Contains(out, want) {
			t.Errorf("quiz page missing %q", want)
		}
	}
	if strings.Contains(out, "Largest planet?") {
		t.Error("quiz page should only show the current question")
	}
}

func TestQuizReview(t *testing.T) {
	snap := quiz.Snapshot{
		State:   quiz.StateSubmitted,
		Quiz:    sampleQuiz(),
		Answers: model.AnswerSet{0: 3},
		Result:  &quiz.Result{Score: 1, Total: 2, PerQuestion: []bool{true, false}},
	}
	items := QuizData{Snap: snap}.Review()
	if len(items) != 2 {
		t.Fatalf("Review() len = %d, want 2", len(items))
	}
	if !items[0].Answered() || !items[0].Correct {
		t.Errorf("item 0 = %+v, want answered and correct", items[0])
	}
	if items[1].Answered() || items[1].Correct {
		t.Errorf("item 1 = %+v, want unanswered and wrong", items[1])
	}

	out := renderString(t, testCtx(t), QuizPage(QuizData{Snap: snap}))
	if !strings.Contains(out, "You scored 1 out of 2 (50%).") {
		t.Error("results page missing score line")
	}
}

func TestChatPageMarksLocalEntries(t *testing.T) {
	ctx := testCtx(t)
	sess := &model.ChatSession{ID: "s1", Title: "New Chat"}
	data := ChatData{
		Sessions: []model.ChatSession{*sess},
		Current:  sess,
		Entries: []chat.Entry{
			{Message: model.Message{ID: "m1", Role: model.RoleUser, Content: "<b>hi</b>"}, State: chat.Committed},
			{Message: model.Message{ID: "local-1", Role: model.RoleAssistant, Content: "hello"}, State: chat.LocalOnly},
		},
	}
	out := renderString(t, ctx, ChatPage(data))

	if strings.Contains(out, "<b>hi</b>") {
		t.Error("message content must be escaped")
	}
	if strings.Count(out, "Not saved") != 1 {
		t.Error("exactly the local entry should be marked as not saved")
	}
	if !strings.Contains(out, `name="session_id" value="s1"`) {
		t.Error("send form should carry the session id")
	}
}

func TestIsAdmin(t *testing.T) {
	if IsAdmin(nil) {
		t.Error("IsAdmin(nil) = true")
	}
	if IsAdmin(&model.User{Role: model.UserRoleLearner}) {
		t.Error("learner reported as admin")
	}
	if !IsAdmin(&model.User{Role: model.UserRoleAdmin}) {
		t.Error("admin not reported as admin")
	}
}
