package ws

import "time"

// ConnInfo describes one websocket attachment for logging and events.
type ConnInfo struct {
	ConnID         string
	UserID         string
	ConversationID string
	DeviceID       string
	IP             string
	ConnectedAt    time.Time
}
