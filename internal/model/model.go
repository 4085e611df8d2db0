package model

import (
	"context"
	"fmt"
	"time"
)

// UserRole represents a user's access level (distinct from Role which is chat message roles).
type UserRole string

const (
	// UserRoleLearner is a regular learner.
	UserRoleLearner UserRole = "learner"
	// UserRoleAdmin can manage users.
	UserRoleAdmin UserRole = "admin"
)

// User represents a system user.
type User struct {
	ID           string
	Username     string
	DisplayName  string
	PasswordHash string
	Role         UserRole
	Active       bool
	CreatedAt    time.Time
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Principal is the authenticated caller. It is built by the auth middleware
// for each request and passed explicitly into every store and orchestration
// call that acts on behalf of a user.
type Principal struct {
	UserID   string
	Username string
	Token    string
}

// Valid reports whether the principal identifies a user.
func (p Principal) Valid() bool {
	return p.UserID != ""
}

type principalCtxKey struct{}

// ContextWithPrincipal stores the principal in the request context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey{}, p)
}

// PrincipalFromContext retrieves the principal, or a zero Principal.
func PrincipalFromContext(ctx context.Context) Principal {
	p, _ := ctx.Value(principalCtxKey{}).(Principal)
	return p
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}

// Role is the author of a chat message.
type Role int

const (
	RoleUser Role = iota + 1
	RoleAssistant
)

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAssistant:
		return "assistant"
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// MarshalText encodes the role by name.
func (r Role) MarshalText() ([]byte, error) {
	if r != RoleUser && r != RoleAssistant {
		return nil, fmt.Errorf("invalid message role %d", int(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText decodes a role name.
func (r *Role) UnmarshalText(b []byte) error {
	v, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// ParseRole maps a stored role name back to a Role.
func ParseRole(s string) (Role, error) {
	switch s {
	case "user":
		return RoleUser, nil
	case "assistant":
		return RoleAssistant, nil
	}
	return 0, fmt.Errorf("unknown message role %q", s)
}

// ChatSession is one tutoring conversation.
type ChatSession struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Subject   *string   `json:"subject,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is a single chat turn.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Number of questions and options every generated quiz must have.
const (
	QuizLength     = 5
	OptionsPerQ    = 4
	DefaultSubject = "General"
)

// Question is a single-select multiple choice question.
type Question struct {
	Prompt       string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_answer"`
	Explanation  string   `json:"explanation"`
}

// Quiz is a generated question set. Immutable once created.
type Quiz struct {
	ID        string     `json:"id,omitempty"`
	UserID    string     `json:"user_id,omitempty"`
	Title     string     `json:"title"`
	Subject   string     `json:"subject"`
	Topic     string     `json:"topic,omitempty"`
	Questions []Question `json:"questions"`
	CreatedAt time.Time  `json:"created_at,omitzero"`
}

// AnswerSet maps a question index to the selected option index.
type AnswerSet map[int]int

// Has reports whether question i has an answer.
func (a AnswerSet) Has(i int) bool {
	_, ok := a[i]
	return ok
}

// Clone returns an independent copy.
func (a AnswerSet) Clone() AnswerSet {
	out := make(AnswerSet, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Attempt is one scored pass through a quiz.
type Attempt struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	QuizID         string    `json:"quiz_id"`
	QuizTitle      string    `json:"quiz_title,omitempty"`
	Answers        AnswerSet `json:"answers"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"total_questions"`
	CompletedAt    time.Time `json:"completed_at"`
}

// StudyTopic tracks how well a user knows a quiz topic.
type StudyTopic struct {
	UserID      string    `json:"user_id"`
	Topic       string    `json:"topic"`
	Subject     string    `json:"subject"`
	Mastery     float64   `json:"mastery"`
	LastStudied time.Time `json:"last_studied"`
	StudyCount  int       `json:"study_count"`
}

// LLMRequest is a log row for one provider call.
type LLMRequest struct {
	ID        int64
	Purpose   string
	Model     string
	LatencyMs int64
	Success   bool
	Error     string
	CreatedAt time.Time
}

// AppConfig holds runtime parameters set via CLI flags.
type AppConfig struct {
	BasePath       string // URL prefix for sub-path deployments (e.g. "/ru")
	SecureCookies  bool   // Set Secure flag on cookies (disable for local dev)
	RecentAttempts int    // Attempts shown on the dashboard
}
