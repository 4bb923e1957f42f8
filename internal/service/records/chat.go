package records

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"taxfiler/internal/models"
)

// AppendChatMessage stores one chat line. Messages are never edited afterwards.
func (s *Service) AppendChatMessage(ctx context.Context, userID int64, role models.Role, message string) (*models.ChatMessage, error) {
	if userID <= 0 {
		return nil, errors.New("user_id is required")
	}
	if !role.Valid() {
		return nil, fmt.Errorf("invalid role %q", role)
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, errors.New("message cannot be empty")
	}
	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_messages (user_id, role, message, created_at) VALUES (?, ?, ?, ?)`,
		userID, string(role), message, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert chat message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("chat message id: %w", err)
	}
	return &models.ChatMessage{ID: id, UserID: userID, Role: role, Message: message, CreatedAt: now}, nil
}

// ListChatMessages returns the user's chat log oldest first.
func (s *Service) ListChatMessages(ctx context.Context, userID int64) ([]*models.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, role, message, created_at FROM chat_messages
		 WHERE user_id = ? ORDER BY created_at ASC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*models.ChatMessage, 0)
	for rows.Next() {
		var m models.ChatMessage
		var role string
		if err := rows.Scan(&m.ID, &m.UserID, &role, &m.Message, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		m.Role = models.Role(role)
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}
