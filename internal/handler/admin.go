package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/groqquest/internal/handler/views"
	appI18n "github.com/pavelanni/groqquest/internal/i18n"
	"github.com/pavelanni/groqquest/internal/model"
)

func (h *Handler) handleAdminUsersPage(w http.ResponseWriter, r *http.Request) {
	h.renderAdminUsers(w, r, http.StatusOK, "")
}

func (h *Handler) renderAdminUsers(w http.ResponseWriter, r *http.Request, status int, msg string) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		slog.Error("failed to list users", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	render(w, r, status, views.AdminUsersPage(users, msg))
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.FormValue("username"))
	displayName := strings.TrimSpace(r.FormValue("display_name"))
	password := r.FormValue("password")
	role := model.UserRole(r.FormValue("role"))

	if username == "" || password == "" {
		h.renderAdminUsers(w, r, http.StatusBadRequest, appI18n.T(r.Context(), "ErrorUserFields"))
		return
	}
	if role != model.UserRoleAdmin {
		role = model.UserRoleLearner
	}
	if displayName == "" {
		displayName = username
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	_, err = h.store.CreateUser(r.Context(), model.User{
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	})
	if err != nil {
		slog.Error("failed to create user", "username", username, "error", err)
		h.renderAdminUsers(w, r, http.StatusConflict, appI18n.T(r.Context(), "ErrorInternal"))
		return
	}
	slog.Info("created user", "username", username, "role", role)

	http.Redirect(w, r, h.path("/admin/users"), http.StatusSeeOther)
}

func (h *Handler) handleToggleUserActive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "userID")
	if id == model.PrincipalFromContext(r.Context()).UserID {
		h.renderAdminUsers(w, r, http.StatusConflict, appI18n.T(r.Context(), "ErrorNotAllowed"))
		return
	}

	if err := h.store.ToggleUserActive(r.Context(), id); err != nil {
		slog.Error("failed to toggle user active", "id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	// A deactivated user loses any in-memory quiz or chat state.
	h.quizzes.Dispose(id)
	h.chat.Dispose(id)

	http.Redirect(w, r, h.path("/admin/users"), http.StatusSeeOther)
}
