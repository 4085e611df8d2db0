package handler

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/groqquest/internal/handler/views"
	appI18n "github.com/pavelanni/groqquest/internal/i18n"
	"github.com/pavelanni/groqquest/internal/model"
)

const (
	sessionCookieName = "session"
	csrfCookieName    = "csrf_token"
)

func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// csrfMiddleware issues a fresh double-submit token on every request and
// checks the form token against the cookie on unsafe methods.
func (h *Handler) csrfMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			cookie, err := r.Cookie(csrfCookieName)
			if err != nil || cookie.Value == "" {
				slog.Warn("CSRF cookie missing", "path", r.URL.Path)
				http.Error(w, "csrf token missing", http.StatusForbidden)
				return
			}
			formToken := r.FormValue("csrf_token")
			if formToken == "" {
				slog.Warn("CSRF form token missing", "path", r.URL.Path)
				http.Error(w, "csrf token missing", http.StatusForbidden)
				return
			}
			if subtle.ConstantTimeCompare([]byte(formToken), []byte(cookie.Value)) != 1 {
				slog.Warn("CSRF token mismatch", "path", r.URL.Path)
				http.Error(w, "invalid csrf token", http.StatusForbidden)
				return
			}
		}

		token, err := generateCSRFToken()
		if err != nil {
			slog.Error("failed to generate CSRF token", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     csrfCookieName,
			Value:    token,
			Path:     h.cookiePath(),
			Secure:   h.config.SecureCookies,
			SameSite: http.SameSiteLaxMode,
		})
		ctx := model.ContextWithCSRFToken(r.Context(), token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authenticate resolves the session cookie to an active user.
// It returns nil when the caller is not signed in.
func (h *Handler) authenticate(r *http.Request) (*model.User, string) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil, ""
	}
	authSess, err := h.store.GetAuthSession(r.Context(), cookie.Value)
	if err != nil {
		slog.Error("failed to get auth session", "error", err)
		return nil, ""
	}
	if authSess == nil {
		return nil, ""
	}
	user, err := h.store.GetUserByID(r.Context(), authSess.UserID)
	if err != nil {
		slog.Error("failed to get user", "id", authSess.UserID, "error", err)
		return nil, ""
	}
	if user == nil || !user.Active {
		return nil, ""
	}
	return user, cookie.Value
}

func withPrincipal(r *http.Request, user *model.User, token string) *http.Request {
	ctx := model.ContextWithUser(r.Context(), user)
	ctx = model.ContextWithPrincipal(ctx, model.Principal{
		UserID:   user.ID,
		Username: user.Username,
		Token:    token,
	})
	return r.WithContext(ctx)
}

// requireAuth is middleware that checks for a valid session cookie.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, token := h.authenticate(r)
		if user == nil {
			http.Redirect(w, r, h.path("/login"), http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, withPrincipal(r, user, token))
	})
}

// requireRole returns middleware that checks the user has one of the allowed roles.
func requireRole(allowed ...model.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := model.UserFromContext(r.Context())
			if user == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			for _, role := range allowed {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, "forbidden", http.StatusForbidden)
		})
	}
}

func (h *Handler) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if user, _ := h.authenticate(r); user != nil {
		http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
		return
	}
	render(w, r, http.StatusOK, views.LoginPage(""))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	username := r.FormValue("username")
	password := r.FormValue("password")

	user, err := h.store.GetUserByUsername(ctx, username)
	if err != nil {
		slog.Error("failed to get user", "error", err)
		h.renderLoginError(w, r)
		return
	}
	if user == nil || !user.Active {
		h.renderLoginError(w, r)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		h.renderLoginError(w, r)
		return
	}

	token, err := h.store.CreateAuthSession(ctx, user.ID)
	if err != nil {
		slog.Error("failed to create auth session", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	slog.Info("user signed in", "user", user.Username)

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     h.cookiePath(),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.config.SecureCookies,
	})
	http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
}

// handleLogout ends the auth session and tears down the user's in-memory
// quiz and chat state.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	p := model.PrincipalFromContext(r.Context())
	if err := h.store.DeleteAuthSession(r.Context(), p.Token); err != nil {
		slog.Warn("failed to delete auth session", "user", p.Username, "error", err)
	}
	h.quizzes.Dispose(p.UserID)
	h.chat.Dispose(p.UserID)

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     h.cookiePath(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
	})
	http.Redirect(w, r, h.path("/login"), http.StatusSeeOther)
}

// PruneExpired deletes expired auth sessions and drops the in-memory quiz
// and chat state of every user left without a live session.
func (h *Handler) PruneExpired(ctx context.Context) error {
	n, err := h.store.CleanupExpiredSessions(ctx)
	if err != nil {
		return err
	}
	active, err := h.store.ActiveSessionUsers(ctx)
	if err != nil {
		return err
	}
	keep := func(userID string) bool { return active[userID] }
	quizzes := h.quizzes.Retain(keep)
	transcripts := h.chat.Retain(keep)
	if n > 0 || quizzes > 0 || transcripts > 0 {
		slog.Debug("pruned expired sessions",
			"auth_sessions", n, "quizzes", quizzes, "transcripts", transcripts)
	}
	return nil
}

func (h *Handler) renderLoginError(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusUnauthorized, views.LoginPage(appI18n.T(r.Context(), "LoginError")))
}
