package db

import (
	"context"
	"fmt"
)

// ChatRepository handles chat message persistence. Messages are
// append-only; the core never updates or deletes them.
type ChatRepository struct {
	db *DB
}

// NewChatRepository creates a new chat repository.
func NewChatRepository(db *DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// CreateMessageParams contains parameters for appending a chat message.
type CreateMessageParams struct {
	Room    string
	Sender  string
	UserID  *int64
	Content string
	Kind    string
}

// Append stores a chat message and returns it with its assigned id and
// timestamp.
func (r *ChatRepository) Append(ctx context.Context, params CreateMessageParams) (*ChatMessage, error) {
	if params.Room == "" {
		params.Room = "general"
	}
	if params.Kind == "" {
		params.Kind = ChatKindUser
	}

	var msg ChatMessage
	err := r.db.pool.QueryRow(ctx, `
		INSERT INTO chat_messages (room, sender, user_id, content, kind)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, room, sender, user_id, content, kind, created_at`,
		params.Room, params.Sender, params.UserID, params.Content, params.Kind,
	).Scan(&msg.ID, &msg.Room, &msg.Sender, &msg.UserID, &msg.Content, &msg.Kind, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert chat message: %w", err)
	}
	return &msg, nil
}

// History returns the most recent messages in a room, oldest first.
func (r *ChatRepository) History(ctx context.Context, room string, limit int) ([]*ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	rows, err := r.db.pool.Query(ctx, `
		SELECT id, room, sender, user_id, content, kind, created_at
		FROM (
			SELECT id, room, sender, user_id, content, kind, created_at
			FROM chat_messages WHERE room = $1
			ORDER BY created_at DESC LIMIT $2
		) AS recent
		ORDER BY created_at`,
		room, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query chat history: %w", err)
	}
	defer rows.Close()

	var messages []*ChatMessage
	for rows.Next() {
		var msg ChatMessage
		if err := rows.Scan(&msg.ID, &msg.Room, &msg.Sender, &msg.UserID, &msg.Content, &msg.Kind, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}
