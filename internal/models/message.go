package models

import "time"

// Message is an append-only row in a conversation. Messages are immutable
// once created except for the read flag.
type Message struct {
	ID             string    `db:"id" json:"id"`
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	SenderID       string    `db:"sender_id" json:"sender_id"`
	Content        string    `db:"content" json:"content"`
	IsRead         bool      `db:"is_read" json:"is_read"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Event kinds carried by the change feed and the websocket surface.
const (
	EventSnapshot = "snapshot"
	EventInsert   = "message"
	EventUpdate   = "update"
)

// StreamEvent is delivered to stream subscribers and websocket clients.
// Snapshot events carry the full held sequence; insert events carry the one
// new row.
type StreamEvent struct {
	Type     string    `json:"type"`
	Message  *Message  `json:"message,omitempty"`
	Messages []Message `json:"messages,omitempty"`
}
