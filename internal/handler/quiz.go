package handler

import (
	"net/http"
	"strconv"

	"github.com/pavelanni/groqquest/internal/handler/views"
	appI18n "github.com/pavelanni/groqquest/internal/i18n"
	"github.com/pavelanni/groqquest/internal/model"
	"github.com/pavelanni/groqquest/internal/quiz"
)

func (h *Handler) machine(r *http.Request) *quiz.Machine {
	return h.quizzes.Get(model.PrincipalFromContext(r.Context()))
}

func (h *Handler) handleQuizPage(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusOK, views.QuizPage(views.QuizData{Snap: h.machine(r).Snapshot()}))
}

// quizDone redirects back to the quiz page on success and renders the
// error inline otherwise.
func (h *Handler) quizDone(w http.ResponseWriter, r *http.Request, m *quiz.Machine, err error, validationID string) {
	if err == nil {
		http.Redirect(w, r, h.path("/quiz"), http.StatusSeeOther)
		return
	}
	status, msgID := errorMessage(err, validationID)
	data := views.QuizData{Snap: m.Snapshot(), Error: appI18n.T(r.Context(), msgID)}
	render(w, r, status, views.QuizPage(data))
}

func (h *Handler) handleGenerateQuiz(w http.ResponseWriter, r *http.Request) {
	m := h.machine(r)
	h.quizDone(w, r, m, m.Submit(r.Context(), r.FormValue("topic")), "ErrorEmptyTopic")
}

func (h *Handler) handleSelectOption(w http.ResponseWriter, r *http.Request) {
	m := h.machine(r)
	option, err := strconv.Atoi(r.FormValue("option"))
	if err == nil {
		err = m.Select(option)
	} else {
		err = model.ErrValidation
	}
	h.quizDone(w, r, m, err, "ErrorNotAllowed")
}

func (h *Handler) handlePrevious(w http.ResponseWriter, r *http.Request) {
	m := h.machine(r)
	h.quizDone(w, r, m, m.Previous(), "ErrorNotAllowed")
}

func (h *Handler) handleNext(w http.ResponseWriter, r *http.Request) {
	m := h.machine(r)
	h.quizDone(w, r, m, m.Next(r.Context()), "ErrorNotAllowed")
}

func (h *Handler) handleFinish(w http.ResponseWriter, r *http.Request) {
	m := h.machine(r)
	h.quizDone(w, r, m, m.Finish(r.Context()), "ErrorNotAllowed")
}

// handleRestart clears the quiz. With retry=1 a new quiz on the same topic
// is requested right away.
func (h *Handler) handleRestart(w http.ResponseWriter, r *http.Request) {
	m := h.machine(r)
	topic := m.Snapshot().Topic
	if err := m.Restart(); err != nil || r.FormValue("retry") != "1" || topic == "" {
		h.quizDone(w, r, m, err, "ErrorNotAllowed")
		return
	}
	h.quizDone(w, r, m, m.Submit(r.Context(), topic), "ErrorEmptyTopic")
}
