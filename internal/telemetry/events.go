package telemetry

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Publisher is the outbound event transport.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// Routing keys for the topic exchange.
const (
	RouteConversationCreated = "messaging.conversation.created"
	RouteMessageCreated      = "messaging.message.created"
	RouteWSEvents            = "messaging.ws_events"
)

// EventEnvelope wraps every outbound domain event.
type EventEnvelope struct {
	SchemaVersion int    `json:"schema_version"`
	EventType     string `json:"event_type"`
	OccurredAt    string `json:"occurred_at"`
	Service       string `json:"service"`
	Environment   string `json:"environment"`
	UserID        string `json:"user_id,omitempty"`
	Payload       any    `json:"payload"`
}

// Emitter publishes enveloped domain events.
type Emitter struct {
	publisher   Publisher
	service     string
	environment string
	log         zerolog.Logger
}

// NewEmitter constructs an Emitter.
func NewEmitter(publisher Publisher, service, environment string, log zerolog.Logger) *Emitter {
	return &Emitter{
		publisher:   publisher,
		service:     service,
		environment: environment,
		log:         log,
	}
}

// Emit publishes one event. Failures are logged, never fatal to the caller.
func (e *Emitter) Emit(ctx context.Context, routingKey, eventType, userID string, payload any) {
	if e == nil || e.publisher == nil {
		return
	}

	envelope := EventEnvelope{
		SchemaVersion: 1,
		EventType:     eventType,
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		UserID:        userID,
		Payload:       payload,
	}

	if err := e.publisher.Publish(ctx, routingKey, envelope); err != nil {
		e.log.Warn().Err(err).Str("event_type", eventType).Msg("event publish failed")
	}
}
