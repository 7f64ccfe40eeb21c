package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

var ErrConversationNotFound = errors.New("conversation not found")

// ConversationRepository abstracts conversation and participant persistence.
type ConversationRepository interface {
	CreateOrGetConversation(ctx context.Context, userID, targetID string) (models.Conversation, bool, error)
	GetConversation(ctx context.Context, conversationID string) (models.Conversation, error)
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
	ListParticipationsForUser(ctx context.Context, userID string) ([]models.Participant, error)
	GetConversationsByIDs(ctx context.Context, ids []string) ([]models.Conversation, error)
	ListCounterparts(ctx context.Context, conversationIDs []string, userID string) ([]models.Participant, error)
	UpdateLastMessage(ctx context.Context, conversationID, text string, at time.Time) error
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// PairKey canonicalizes two user ids into the unique key for their
// conversation. Both orderings of the same pair produce the same key.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

// CreateOrGetConversation creates the conversation for a user pair if it does
// not already exist and returns it along with whether it was created. The
// conversation row and both participant rows are written in one transaction,
// and the pair-key constraint makes concurrent calls from both users converge
// on a single row.
func (r *ConversationRepo) CreateOrGetConversation(ctx context.Context, userID, targetID string) (models.Conversation, bool, error) {
	pairKey := PairKey(userID, targetID)

	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv,
		`SELECT id, pair_key, last_message_text, last_message_at, created_at FROM conversations WHERE pair_key=$1`, pairKey)
	if err == nil {
		return conv, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, false, gatewayError(err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, false, gatewayError(err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	// The no-op DO UPDATE makes RETURNING yield the surviving row when a
	// concurrent creation wins the race.
	if err = tx.QueryRowxContext(ctx,
		`INSERT INTO conversations (pair_key) VALUES ($1)
         ON CONFLICT (pair_key) DO UPDATE SET pair_key = EXCLUDED.pair_key
         RETURNING id, pair_key, last_message_text, last_message_at, created_at`, pairKey).
		StructScan(&conv); err != nil {
		return models.Conversation{}, false, gatewayError(err)
	}

	for _, participant := range []string{userID, targetID} {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO conversation_participants (conversation_id, user_id) VALUES ($1, $2)
             ON CONFLICT (conversation_id, user_id) DO NOTHING`, conv.ID, participant); err != nil {
			return models.Conversation{}, false, gatewayError(err)
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Conversation{}, false, gatewayError(err)
	}
	return conv, true, nil
}

// GetConversation fetches a conversation by id.
func (r *ConversationRepo) GetConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv,
		`SELECT id, pair_key, last_message_text, last_message_at, created_at FROM conversations WHERE id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, gatewayError(err)
}

// IsParticipant checks whether a user belongs to the conversation.
func (r *ConversationRepo) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM conversation_participants WHERE conversation_id=$1 AND user_id=$2)`,
		conversationID, userID)
	return exists, gatewayError(err)
}

// ListParticipationsForUser returns the participant rows for one user.
func (r *ConversationRepo) ListParticipationsForUser(ctx context.Context, userID string) ([]models.Participant, error) {
	var rows []models.Participant
	err := r.db.SelectContext(ctx, &rows,
		`SELECT conversation_id, user_id, created_at FROM conversation_participants WHERE user_id=$1`, userID)
	return rows, gatewayError(err)
}

// GetConversationsByIDs fetches the conversation rows for a set of ids.
func (r *ConversationRepo) GetConversationsByIDs(ctx context.Context, ids []string) ([]models.Conversation, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(
		`SELECT id, pair_key, last_message_text, last_message_at, created_at FROM conversations WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var convs []models.Conversation
	err = r.db.SelectContext(ctx, &convs, r.db.Rebind(query), args...)
	return convs, gatewayError(err)
}

// ListCounterparts returns participant rows for the given conversations that
// belong to users other than userID.
func (r *ConversationRepo) ListCounterparts(ctx context.Context, conversationIDs []string, userID string) ([]models.Participant, error) {
	if len(conversationIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(
		`SELECT conversation_id, user_id, created_at FROM conversation_participants
         WHERE conversation_id IN (?) AND user_id <> ?`, conversationIDs, userID)
	if err != nil {
		return nil, err
	}
	var rows []models.Participant
	err = r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...)
	return rows, gatewayError(err)
}

// UpdateLastMessage refreshes the denormalized preview fields.
func (r *ConversationRepo) UpdateLastMessage(ctx context.Context, conversationID, text string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE conversations SET last_message_text=$2, last_message_at=$3 WHERE id=$1`,
		conversationID, text, at)
	if err != nil {
		return gatewayError(err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return gatewayError(err)
	}
	if count == 0 {
		return ErrConversationNotFound
	}
	return nil
}
