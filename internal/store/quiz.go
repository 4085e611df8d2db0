package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pavelanni/groqquest/internal/model"
)

// CreateQuiz stores a generated quiz and returns it with ID and timestamp set.
func (s *Store) CreateQuiz(ctx context.Context, userID string, q model.Quiz) (*model.Quiz, error) {
	questions, err := json.Marshal(q.Questions)
	if err != nil {
		return nil, fmt.Errorf("marshal questions: %w", err)
	}
	q.ID = newID()
	q.UserID = userID
	q.CreatedAt = s.now()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO quizzes (id, user_id, title, subject, topic, questions, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.UserID, q.Title, q.Subject, q.Topic, string(questions), q.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// GetQuiz returns a quiz by ID, or nil if it was deleted or never existed.
func (s *Store) GetQuiz(ctx context.Context, id string) (*model.Quiz, error) {
	var (
		q         model.Quiz
		questions string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, subject, topic, questions, created_at FROM quizzes WHERE id = ?`, id,
	).Scan(&q.ID, &q.UserID, &q.Title, &q.Subject, &q.Topic, &questions, &q.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(questions), &q.Questions); err != nil {
		return nil, fmt.Errorf("decode questions of quiz %s: %w", id, err)
	}
	return &q, nil
}

// CreateAttempt stores a scored attempt. Attempts are never updated.
func (s *Store) CreateAttempt(ctx context.Context, userID string, a model.Attempt) (*model.Attempt, error) {
	if a.Score < 0 || a.Score > a.TotalQuestions {
		return nil, fmt.Errorf("score %d out of range [0,%d]", a.Score, a.TotalQuestions)
	}
	answers, err := json.Marshal(a.Answers)
	if err != nil {
		return nil, fmt.Errorf("marshal answers: %w", err)
	}
	a.ID = newID()
	a.UserID = userID
	if a.CompletedAt.IsZero() {
		a.CompletedAt = s.now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO quiz_attempts (id, user_id, quiz_id, answers, score, total_questions, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.QuizID, string(answers), a.Score, a.TotalQuestions, a.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListRecentAttempts returns the user's latest attempts, newest first.
// The quiz title is filled in when the quiz still exists.
func (s *Store) ListRecentAttempts(ctx context.Context, userID string, limit int) ([]model.Attempt, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.id, a.user_id, a.quiz_id, COALESCE(q.title, ''), a.answers, a.score, a.total_questions, a.completed_at
		 FROM quiz_attempts a LEFT JOIN quizzes q ON q.id = a.quiz_id
		 WHERE a.user_id = ? ORDER BY a.completed_at DESC, a.rowid DESC LIMIT ?`, userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var attempts []model.Attempt
	for rows.Next() {
		var (
			a       model.Attempt
			answers string
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.QuizID, &a.QuizTitle, &answers, &a.Score, &a.TotalQuestions, &a.CompletedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(answers), &a.Answers); err != nil {
			return nil, fmt.Errorf("decode answers of attempt %s: %w", a.ID, err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// UpsertStudyTopic records a study pass on a topic. Mastery is replaced with
// the latest value and the study count is incremented.
func (s *Store) UpsertStudyTopic(ctx context.Context, t model.StudyTopic) error {
	if t.LastStudied.IsZero() {
		t.LastStudied = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO study_topics (user_id, topic, subject, mastery_level, last_studied, study_count)
		 VALUES (?, ?, ?, ?, ?, 1)
		 ON CONFLICT(user_id, topic, subject) DO UPDATE SET
		   mastery_level = excluded.mastery_level,
		   last_studied = excluded.last_studied,
		   study_count = study_topics.study_count + 1`,
		t.UserID, t.Topic, t.Subject, t.Mastery, t.LastStudied,
	)
	return err
}

// ListStudyTopics returns the user's topics, most recently studied first.
func (s *Store) ListStudyTopics(ctx context.Context, userID string) ([]model.StudyTopic, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, topic, subject, mastery_level, last_studied, study_count
		 FROM study_topics WHERE user_id = ? ORDER BY last_studied DESC`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var topics []model.StudyTopic
	for rows.Next() {
		var t model.StudyTopic
		if err := rows.Scan(&t.UserID, &t.Topic, &t.Subject, &t.Mastery, &t.LastStudied, &t.StudyCount); err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}
