package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/pavelanni/groqquest/internal/model"
)

type apiChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

type apiChatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"sessionId"`
}

type apiQuizRequest struct {
	Topic string `json:"topic"`
}

type apiQuizResponse struct {
	Quiz *model.Quiz `json:"quiz"`
}

// apiError is the JSON error body. SessionID is set once a chat session
// exists so a client can retry into the conversation it just started.
type apiError struct {
	Error     string `json:"error"`
	SessionID string `json:"sessionId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeAPIError(w http.ResponseWriter, err error) {
	writeSessionError(w, err, "")
}

func writeSessionError(w http.ResponseWriter, err error, sessionID string) {
	status, _ := errorMessage(err, "")
	writeJSON(w, status, apiError{Error: err.Error(), SessionID: sessionID})
}

// requireAPIAuth authenticates JSON calls by session cookie. Only
// application/json bodies are accepted, which a cross-site form cannot send.
func (h *Handler) requireAPIAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, token := h.authenticate(r)
		if user == nil {
			writeJSON(w, http.StatusUnauthorized, apiError{Error: "unauthorized"})
			return
		}
		if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mt != "application/json" {
			writeJSON(w, http.StatusUnsupportedMediaType, apiError{Error: "expected application/json"})
			return
		}
		next.ServeHTTP(w, withPrincipal(r, user, token))
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		return &requestError{err}
	}
	return nil
}

type requestError struct{ err error }

func (e *requestError) Error() string   { return "invalid request body: " + e.err.Error() }
func (e *requestError) Unwrap() []error { return []error{model.ErrValidation, e.err} }

func (h *Handler) handleAPIChat(w http.ResponseWriter, r *http.Request) {
	var req apiChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAPIError(w, err)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeAPIError(w, fmt.Errorf("%w: message is empty", model.ErrValidation))
		return
	}
	ctx := r.Context()
	p := model.PrincipalFromContext(ctx)

	sess, err := h.chat.EnsureSession(ctx, p, req.SessionID)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	res, err := h.chat.SendTurn(ctx, p, sess.ID, req.Message)
	if err != nil {
		writeSessionError(w, err, sess.ID)
		return
	}
	writeJSON(w, http.StatusOK, apiChatResponse{Response: res.Assistant.Message.Content, SessionID: sess.ID})
}

func (h *Handler) handleAPIGenerateQuiz(w http.ResponseWriter, r *http.Request) {
	var req apiQuizRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAPIError(w, err)
		return
	}
	p := model.PrincipalFromContext(r.Context())

	res, err := h.generator.Generate(r.Context(), p, req.Topic)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	if res.Warning != nil {
		slog.Warn("quiz not saved", "user", p.Username, "error", res.Warning)
	}
	writeJSON(w, http.StatusOK, apiQuizResponse{Quiz: res.Quiz})
}
