package quiz

import "github.com/pavelanni/groqquest/internal/model"

// Result is the outcome of scoring one attempt.
type Result struct {
	Score       int
	PerQuestion []bool
	Total       int
}

// Percent returns the score as a rounded percentage.
func (r Result) Percent() int {
	if r.Total == 0 {
		return 0
	}
	return (r.Score*100 + r.Total/2) / r.Total
}

// Score marks each question correct iff its answer matches the correct
// option. Unanswered questions are incorrect.
func Score(q *model.Quiz, a model.AnswerSet) Result {
	if q == nil {
		return Result{}
	}
	r := Result{
		PerQuestion: make([]bool, len(q.Questions)),
		Total:       len(q.Questions),
	}
	for i, question := range q.Questions {
		if sel, ok := a[i]; ok && sel == question.CorrectIndex {
			r.PerQuestion[i] = true
			r.Score++
		}
	}
	return r
}
