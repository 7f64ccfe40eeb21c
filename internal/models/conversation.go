package models

import (
	"database/sql"
	"time"
)

// Conversation is a 1:1 thread between exactly two users. The pair key is the
// canonicalized "smaller:larger" concatenation of the two participant ids and
// is unique, so a user pair maps to at most one conversation.
type Conversation struct {
	ID              string         `db:"id" json:"id"`
	PairKey         string         `db:"pair_key" json:"-"`
	LastMessageText sql.NullString `db:"last_message_text" json:"-"`
	LastMessageAt   sql.NullTime   `db:"last_message_at" json:"-"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
}

// Participant links a user to a conversation.
type Participant struct {
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	UserID         string    `db:"user_id" json:"user_id"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// ConversationSummary is the API-facing view of one conversation for one user:
// the counterpart's identity plus the denormalized last-message preview.
type ConversationSummary struct {
	ConversationID  string     `json:"conversation_id"`
	PartnerID       string     `json:"partner_id"`
	PartnerName     string     `json:"partner_name,omitempty"`
	LastMessageText string     `json:"last_message_text,omitempty"`
	LastMessageAt   *time.Time `json:"last_message_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}
