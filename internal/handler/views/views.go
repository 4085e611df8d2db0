// Package views renders the HTML pages. Each page is a templ.Component
// backed by an embedded html/template set, with translation and path
// helpers bound to the request context at render time.
package views

import (
	"context"
	"embed"
	"html/template"
	"io"
	"time"

	"github.com/a-h/templ"

	"github.com/pavelanni/groqquest/internal/chat"
	appI18n "github.com/pavelanni/groqquest/internal/i18n"
	"github.com/pavelanni/groqquest/internal/model"
	"github.com/pavelanni/groqquest/internal/quiz"
)

//go:embed templates/*.html
var templateFS embed.FS

// placeholders are replaced per render by contextFuncs.
var placeholders = template.FuncMap{
	"T":    func(string) string { return "" },
	"Td":   func(string, ...any) string { return "" },
	"Tp":   func(string, int) string { return "" },
	"path": func(string) string { return "" },
	"csrf": func() string { return "" },
	"user": func() *model.User { return nil },
}

var staticFuncs = template.FuncMap{
	"inc":     func(i int) int { return i + 1 },
	"letter":  func(i int) string { return string(rune('A' + i)) },
	"percent": func(f float64) int { return int(f*100 + 0.5) },
	"date":    func(t time.Time) string { return t.Format("2006-01-02 15:04") },
	"isAdmin": IsAdmin,
}

var pages = map[string]*template.Template{}

func init() {
	for _, name := range []string{"login", "index", "chat", "quiz", "admin_users"} {
		pages[name] = template.Must(template.New(name).
			Funcs(placeholders).
			Funcs(staticFuncs).
			ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html"))
	}
}

func contextFuncs(ctx context.Context) template.FuncMap {
	base := model.BasePathFromContext(ctx)
	return template.FuncMap{
		"T": func(id string) string { return appI18n.T(ctx, id) },
		"Td": func(id string, kv ...any) string {
			data := make(map[string]any, len(kv)/2)
			for i := 0; i+1 < len(kv); i += 2 {
				if k, ok := kv[i].(string); ok {
					data[k] = kv[i+1]
				}
			}
			return appI18n.Td(ctx, id, data)
		},
		"Tp":   func(id string, n int) string { return appI18n.Tp(ctx, id, n) },
		"path": func(p string) string { return base + p },
		"csrf": func() string { return model.CSRFTokenFromContext(ctx) },
		"user": func() *model.User { return model.UserFromContext(ctx) },
	}
}

func page(name string, data any) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		t, err := pages[name].Clone()
		if err != nil {
			return err
		}
		return t.Funcs(contextFuncs(ctx)).ExecuteTemplate(w, "layout", data)
	})
}

// LoginPage renders the sign-in form with an optional error.
func LoginPage(errMsg string) templ.Component {
	return page("login", struct{ Error string }{errMsg})
}

// IndexData feeds the dashboard.
type IndexData struct {
	Attempts []model.Attempt
	Sessions []model.ChatSession
	Topics   []model.StudyTopic
}

// IndexPage renders the dashboard.
func IndexPage(data IndexData) templ.Component {
	return page("index", data)
}

// ChatData feeds the chat page.
type ChatData struct {
	Sessions []model.ChatSession
	Current  *model.ChatSession
	Entries  []chat.Entry
	Draft    string
	Error    string
}

// IsAssistant reports whether e was written by the tutor.
func (ChatData) IsAssistant(e chat.Entry) bool {
	return e.Message.Role == model.RoleAssistant
}

// IsLocal reports whether e was not stored.
func (ChatData) IsLocal(e chat.Entry) bool {
	return e.State == chat.LocalOnly
}

// ChatPage renders the chat page.
func ChatPage(data ChatData) templ.Component {
	return page("chat", data)
}

// QuizData feeds the quiz page.
type QuizData struct {
	Snap  quiz.Snapshot
	Error string
}

// Current returns the question being answered.
func (d QuizData) Current() model.Question {
	return d.Snap.Quiz.Questions[d.Snap.Index]
}

// Generating reports whether a quiz is being generated.
func (d QuizData) Generating() bool { return d.Snap.State == quiz.StateGenerating }

// Answering reports whether questions are being answered.
func (d QuizData) Answering() bool { return d.Snap.State == quiz.StateAnswering }

// Submitted reports whether results are shown.
func (d QuizData) Submitted() bool { return d.Snap.State == quiz.StateSubmitted }

// Review lists each question with the learner's answer for the results view.
func (d QuizData) Review() []ReviewItem {
	if d.Snap.Quiz == nil || d.Snap.Result == nil {
		return nil
	}
	items := make([]ReviewItem, len(d.Snap.Quiz.Questions))
	for i, q := range d.Snap.Quiz.Questions {
		items[i] = ReviewItem{Question: q, Selected: -1, Correct: d.Snap.Result.PerQuestion[i]}
		if v, ok := d.Snap.Answers[i]; ok {
			items[i].Selected = v
		}
	}
	return items
}

// ReviewItem is one row of the results view.
type ReviewItem struct {
	Question model.Question
	Selected int
	Correct  bool
}

// Answered reports whether the learner picked an option.
func (r ReviewItem) Answered() bool { return r.Selected >= 0 }

// QuizPage renders the quiz in its current state.
func QuizPage(data QuizData) templ.Component {
	return page("quiz", data)
}

// AdminUsersPage renders user management.
func AdminUsersPage(users []model.User, msg string) templ.Component {
	return page("admin_users", struct {
		Users   []model.User
		Message string
	}{users, msg})
}

// IsAdmin reports whether u may manage users.
func IsAdmin(u *model.User) bool {
	return u != nil && u.Role == model.UserRoleAdmin
}
