package feed

import (
	"sync"

	"github.com/google/uuid"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
)

const subscriptionBuffer = 128

// Event is a change notification for one conversation's messages. Insert
// events carry the new row; update events carry the id of the reader whose
// mark-read changed existing rows.
type Event struct {
	Kind    string
	Message models.Message
	Reader  string
}

// Subscription is one registered interest in a conversation's changes.
// Events are delivered on a buffered channel; Cancel is idempotent and
// closes the channel.
type Subscription struct {
	id             string
	conversationID string
	events         chan Event
	broker         *Broker
}

// Events returns the delivery channel. It is closed on Cancel.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Cancel tears the subscription down.
func (s *Subscription) Cancel() {
	s.broker.cancel(s)
}

// Broker fans out message change events to every subscriber of a
// conversation. It stands in for the hosted datastore's table change feed:
// writers publish after a successful insert and each open view subscribes
// for the conversation it renders.
type Broker struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*Subscription
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{rooms: make(map[string]map[string]*Subscription)}
}

// Subscribe registers interest in new message rows for one conversation.
func (b *Broker) Subscribe(conversationID string) *Subscription {
	sub := &Subscription{
		id:             uuid.NewString(),
		conversationID: conversationID,
		events:         make(chan Event, subscriptionBuffer),
		broker:         b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.rooms[conversationID]; !ok {
		b.rooms[conversationID] = make(map[string]*Subscription)
	}
	b.rooms[conversationID][sub.id] = sub
	return sub
}

// Publish delivers an event to every subscriber of the conversation.
// A subscriber whose buffer is full is cancelled rather than blocking the
// publisher; such a consumer must reload history to catch up.
func (b *Broker) Publish(conversationID string, event Event) {
	var slow []*Subscription

	b.mu.RLock()
	for _, sub := range b.rooms[conversationID] {
		select {
		case sub.events <- event:
			observability.IncFeedEvent(event.Kind, "delivered")
		default:
			slow = append(slow, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range slow {
		observability.IncFeedEvent(event.Kind, "dropped_slow_subscriber")
		b.cancel(sub)
	}
}

// SubscriberCount reports active subscriptions for a conversation.
func (b *Broker) SubscriberCount(conversationID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rooms[conversationID])
}

func (b *Broker) cancel(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.rooms[sub.conversationID]
	if !ok {
		return
	}
	if _, ok := subs[sub.id]; !ok {
		return
	}
	delete(subs, sub.id)
	if len(subs) == 0 {
		delete(b.rooms, sub.conversationID)
	}
	close(sub.events)
}
