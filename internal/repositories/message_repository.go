package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

// MessageRepository defines interactions for conversation messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, conversationID, senderID, content string) (models.Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	MarkConversationRead(ctx context.Context, conversationID, readerID string) (int64, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a message and returns the server-assigned row.
func (r *MessageRepo) CreateMessage(ctx context.Context, conversationID, senderID, content string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO messages (conversation_id, sender_id, content) VALUES ($1, $2, $3)
         RETURNING id, conversation_id, sender_id, content, is_read, created_at`,
		conversationID, senderID, content).
		StructScan(&msg)
	return msg, gatewayError(err)
}

// ListMessages returns the conversation history ordered by creation time.
// The id tiebreak keeps repeated loads stable when timestamps collide.
func (r *MessageRepo) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT id, conversation_id, sender_id, content, is_read, created_at
         FROM messages WHERE conversation_id=$1
         ORDER BY created_at ASC, id ASC`, conversationID)
	return msgs, gatewayError(err)
}

// MarkConversationRead flags every unread message in the conversation that was
// not authored by the reader. Idempotent; returns the number of rows changed.
func (r *MessageRepo) MarkConversationRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET is_read = TRUE
         WHERE conversation_id=$1 AND sender_id<>$2 AND is_read = FALSE`,
		conversationID, readerID)
	if err != nil {
		return 0, gatewayError(err)
	}
	return res.RowsAffected()
}
