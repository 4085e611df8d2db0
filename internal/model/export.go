package model

import "time"

// AttemptsExport is the top-level JSON structure for quiz result export.
type AttemptsExport struct {
	ExportedAt time.Time    `json:"exported_at"`
	Learners   []UserResult `json:"learners"`
}

// UserResult holds one user's quiz history for export.
type UserResult struct {
	Username    string          `json:"username"`
	DisplayName string          `json:"display_name"`
	Attempts    []AttemptResult `json:"attempts"`
	Topics      []StudyTopic    `json:"topics"`
}

// AttemptResult holds one attempt with the quiz it was taken on.
type AttemptResult struct {
	QuizTitle   string           `json:"quiz_title"`
	Subject     string           `json:"subject"`
	Score       int              `json:"score"`
	Total       int              `json:"total"`
	CompletedAt time.Time        `json:"completed_at"`
	Questions   []QuestionResult `json:"questions,omitempty"`
}

// QuestionResult is the per-question outcome of an attempt.
type QuestionResult struct {
	Prompt   string `json:"question"`
	Selected *int   `json:"selected,omitempty"`
	Correct  int    `json:"correct_answer"`
	IsRight  bool   `json:"is_right"`
}
