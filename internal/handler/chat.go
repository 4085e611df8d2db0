package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/groqquest/internal/handler/views"
	appI18n "github.com/pavelanni/groqquest/internal/i18n"
	"github.com/pavelanni/groqquest/internal/model"
)

func (h *Handler) handleChatPage(w http.ResponseWriter, r *http.Request) {
	h.renderChat(w, r, http.StatusOK, chi.URLParam(r, "sessionID"), "", "")
}

func (h *Handler) handleNewChat(w http.ResponseWriter, r *http.Request) {
	p := model.PrincipalFromContext(r.Context())

	var subject *string
	if s := strings.TrimSpace(r.FormValue("subject")); s != "" {
		subject = &s
	}
	sess, err := h.chat.StartSession(r.Context(), p, subject)
	if err != nil {
		status, msgID := errorMessage(err, "ErrorInternal")
		h.renderChat(w, r, status, "", "", appI18n.T(r.Context(), msgID))
		return
	}
	http.Redirect(w, r, h.path("/chat/"+sess.ID), http.StatusSeeOther)
}

// handleSendChat runs one turn. With no session_id a new session is
// started for the message.
func (h *Handler) handleSendChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := model.PrincipalFromContext(ctx)
	text := r.FormValue("message")
	sessionID := r.FormValue("session_id")

	if strings.TrimSpace(text) == "" {
		h.renderChat(w, r, http.StatusBadRequest, sessionID, "", appI18n.T(ctx, "ErrorEmptyMessage"))
		return
	}

	sess, err := h.chat.EnsureSession(ctx, p, sessionID)
	if err != nil {
		status, msgID := errorMessage(err, "ErrorEmptyMessage")
		h.renderChat(w, r, status, "", text, appI18n.T(ctx, msgID))
		return
	}

	res, err := h.chat.SendTurn(ctx, p, sess.ID, text)
	if err != nil {
		status, msgID := errorMessage(err, "ErrorEmptyMessage")
		draft := text
		if res != nil {
			// The user message is already in the transcript.
			draft = ""
		}
		h.renderChat(w, r, status, sess.ID, draft, appI18n.T(ctx, msgID))
		return
	}
	http.Redirect(w, r, h.path("/chat/"+sess.ID), http.StatusSeeOther)
}

func (h *Handler) renderChat(w http.ResponseWriter, r *http.Request, status int, sessionID, draft, errMsg string) {
	ctx := r.Context()
	p := model.PrincipalFromContext(ctx)

	sessions, err := h.chat.Sessions(ctx, p)
	if err != nil {
		slog.Error("failed to list chat sessions", "user", p.Username, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	data := views.ChatData{Sessions: sessions, Draft: draft, Error: errMsg}

	if sessionID != "" {
		sess, err := h.chat.EnsureSession(ctx, p, sessionID)
		if err != nil {
			s, msgID := errorMessage(err, "ErrorNoSession")
			if status == http.StatusOK {
				status = s
			}
			data.Error = appI18n.T(ctx, msgID)
		} else {
			data.Current = sess
			if data.Entries, err = h.chat.Transcript(ctx, p, sess.ID); err != nil {
				slog.Error("failed to load transcript", "session", sess.ID, "error", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
		}
	}

	render(w, r, status, views.ChatPage(data))
}
