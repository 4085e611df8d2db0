package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/groqquest/internal/chat"
	"github.com/pavelanni/groqquest/internal/handler/views"
	"github.com/pavelanni/groqquest/internal/llm"
	"github.com/pavelanni/groqquest/internal/model"
	"github.com/pavelanni/groqquest/internal/quiz"
	"github.com/pavelanni/groqquest/internal/store"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store     *store.Store
	generator *quiz.Generator
	quizzes   *quiz.Registry
	chat      *chat.Orchestrator
	config    model.AppConfig
}

// New creates a new Handler.
func New(s *store.Store, l *llm.Client, cfg model.AppConfig) (*Handler, error) {
	if cfg.RecentAttempts <= 0 {
		cfg.RecentAttempts = 10
	}
	gen := quiz.NewGenerator(l, s)
	return &Handler{
		store:     s,
		generator: gen,
		quizzes:   quiz.NewRegistry(gen, s),
		chat:      chat.NewOrchestrator(s, l),
		config:    cfg,
	}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.csrfMiddleware)
		r.Get("/login", h.handleLoginPage)
		r.Post("/login", h.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Post("/logout", h.handleLogout)
			r.Get("/", h.handleIndex)

			r.Get("/chat", h.handleChatPage)
			r.Get("/chat/{sessionID}", h.handleChatPage)
			r.Post("/chat/new", h.handleNewChat)
			r.Post("/chat/send", h.handleSendChat)

			r.Get("/quiz", h.handleQuizPage)
			r.Post("/quiz/generate", h.handleGenerateQuiz)
			r.Post("/quiz/select", h.handleSelectOption)
			r.Post("/quiz/previous", h.handlePrevious)
			r.Post("/quiz/next", h.handleNext)
			r.Post("/quiz/submit", h.handleFinish)
			r.Post("/quiz/restart", h.handleRestart)

			r.Group(func(r chi.Router) {
				r.Use(requireRole(model.UserRoleAdmin))
				r.Get("/admin/users", h.handleAdminUsersPage)
				r.Post("/admin/users", h.handleCreateUser)
				r.Post("/admin/users/{userID}/toggle", h.handleToggleUserActive)
			})
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(h.requireAPIAuth)
		r.Post("/chat", h.handleAPIChat)
		r.Post("/generate-quiz", h.handleAPIGenerateQuiz)
	})
}

// BasePathMiddleware makes the configured URL prefix available to views.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) path(p string) string {
	return h.config.BasePath + p
}

func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}

func render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	if err := c.Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

// errorMessage maps an error kind to a status code and a translation ID.
// validationID names the message shown for ErrValidation.
func errorMessage(err error, validationID string) (int, string) {
	switch {
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest, validationID
	case errors.Is(err, model.ErrNoSession):
		return http.StatusNotFound, "ErrorNoSession"
	case errors.Is(err, model.ErrBusy):
		return http.StatusConflict, "ErrorBusy"
	case errors.Is(err, model.ErrGuard):
		return http.StatusConflict, "ErrorNotAllowed"
	case errors.Is(err, model.ErrMalformedResponse):
		return http.StatusBadGateway, "ErrorMalformed"
	case errors.Is(err, model.ErrUpstreamUnavailable):
		return http.StatusBadGateway, "ErrorUpstream"
	}
	return http.StatusInternalServerError, "ErrorInternal"
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := model.PrincipalFromContext(ctx)

	var data views.IndexData
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		data.Attempts, err = h.store.ListRecentAttempts(gctx, p.UserID, h.config.RecentAttempts)
		return err
	})
	g.Go(func() error {
		var err error
		data.Sessions, err = h.store.ListChatSessions(gctx, p.UserID)
		return err
	})
	g.Go(func() error {
		var err error
		data.Topics, err = h.store.ListStudyTopics(gctx, p.UserID)
		return err
	})
	if err := g.Wait(); err != nil {
		slog.Error("failed to load dashboard", "user", p.Username, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	render(w, r, http.StatusOK, views.IndexPage(data))
}
