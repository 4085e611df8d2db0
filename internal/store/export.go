package store

import (
	"context"
	"fmt"
	"math"

	"github.com/pavelanni/groqquest/internal/model"
)

// ExportAllAttempts builds export-ready quiz histories for every user.
func (s *Store) ExportAllAttempts(ctx context.Context, perUser int) ([]model.UserResult, error) {
	users, err := s.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	if perUser <= 0 {
		perUser = math.MaxInt32
	}

	// Quizzes are shared by several attempts after a retry; load each once.
	quizzes := make(map[string]*model.Quiz)

	var results []model.UserResult
	for _, u := range users {
		attempts, err := s.ListRecentAttempts(ctx, u.ID, perUser)
		if err != nil {
			return nil, fmt.Errorf("list attempts of %s: %w", u.Username, err)
		}
		topics, err := s.ListStudyTopics(ctx, u.ID)
		if err != nil {
			return nil, fmt.Errorf("list topics of %s: %w", u.Username, err)
		}

		ur := model.UserResult{
			Username:    u.Username,
			DisplayName: u.DisplayName,
			Topics:      topics,
		}
		for _, a := range attempts {
			q, ok := quizzes[a.QuizID]
			if !ok && a.QuizID != "" {
				q, err = s.GetQuiz(ctx, a.QuizID)
				if err != nil {
					return nil, fmt.Errorf("get quiz %s: %w", a.QuizID, err)
				}
				quizzes[a.QuizID] = q
			}
			ur.Attempts = append(ur.Attempts, attemptResult(a, q))
		}
		results = append(results, ur)
	}
	return results, nil
}

func attemptResult(a model.Attempt, q *model.Quiz) model.AttemptResult {
	ar := model.AttemptResult{
		QuizTitle:   a.QuizTitle,
		Score:       a.Score,
		Total:       a.TotalQuestions,
		CompletedAt: a.CompletedAt,
	}
	// The quiz may have been deleted; keep the score without question detail.
	if q == nil {
		return ar
	}
	ar.Subject = q.Subject
	for i, question := range q.Questions {
		qr := model.QuestionResult{Prompt: question.Prompt, Correct: question.CorrectIndex}
		if sel, ok := a.Answers[i]; ok {
			qr.Selected = &sel
			qr.IsRight = sel == question.CorrectIndex
		}
		ar.Questions = append(ar.Questions, qr)
	}
	return ar
}
