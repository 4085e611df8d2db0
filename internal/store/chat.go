package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/pavelanni/groqquest/internal/model"
)

// CreateChatSession stores a new chat session for the user.
func (s *Store) CreateChatSession(ctx context.Context, userID, title string, subject *string) (*model.ChatSession, error) {
	sess := &model.ChatSession{
		ID:        newID(),
		UserID:    userID,
		Title:     title,
		Subject:   subject,
		CreatedAt: s.now(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (id, user_id, title, subject, created_at) VALUES (?, ?, ?, ?, ?)`,
		sess.ID, sess.UserID, sess.Title, sess.Subject, sess.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// GetChatSession returns the user's session by ID, or nil if it does not
// exist or belongs to someone else.
func (s *Store) GetChatSession(ctx context.Context, userID, id string) (*model.ChatSession, error) {
	var sess model.ChatSession
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, subject, created_at FROM chat_sessions WHERE id = ? AND user_id = ?`,
		id, userID,
	).Scan(&sess.ID, &sess.UserID, &sess.Title, &sess.Subject, &sess.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// ListChatSessions returns the user's sessions, newest first.
func (s *Store) ListChatSessions(ctx context.Context, userID string) ([]model.ChatSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, subject, created_at FROM chat_sessions
		 WHERE user_id = ? ORDER BY created_at DESC, rowid DESC`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sessions []model.ChatSession
	for rows.Next() {
		var sess model.ChatSession
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.Title, &sess.Subject, &sess.CreatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// AddMessage appends a message to a session and returns it with ID and timestamp set.
func (s *Store) AddMessage(ctx context.Context, userID string, msg model.Message) (*model.Message, error) {
	if msg.Role != model.RoleUser && msg.Role != model.RoleAssistant {
		return nil, errors.New("add message: invalid role")
	}
	msg.ID = newID()
	msg.CreatedAt = s.now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_messages (id, session_id, user_id, role, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, userID, msg.Role.String(), msg.Content, msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListMessages returns all messages of a session in conversation order.
func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, created_at FROM chat_messages
		 WHERE session_id = ? ORDER BY created_at, seq`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var messages []model.Message
	for rows.Next() {
		var (
			m    model.Message
			role string
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		if m.Role, err = model.ParseRole(role); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
