package store

import (
	"context"

	"github.com/pavelanni/groqquest/internal/model"
)

// AppendLLMRequest records one provider call.
func (s *Store) AppendLLMRequest(ctx context.Context, r model.LLMRequest) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO llm_requests (purpose, model, latency_ms, success, error, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		r.Purpose, r.Model, r.LatencyMs, r.Success, r.Error, s.now(),
	)
	return err
}

// ListLLMRequests returns the latest provider calls, newest first.
func (s *Store) ListLLMRequests(ctx context.Context, limit int) ([]model.LLMRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, purpose, model, latency_ms, success, error, created_at
		 FROM llm_requests ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.LLMRequest
	for rows.Next() {
		var r model.LLMRequest
		if err := rows.Scan(&r.ID, &r.Purpose, &r.Model, &r.LatencyMs, &r.Success, &r.Error, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
