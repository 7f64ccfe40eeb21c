package stream

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"messaging-service/internal/feed"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
)

// ErrNotOpen rejects operations on a stream with no conversation selected.
var ErrNotOpen = errors.New("no conversation selected")

// State is the stream lifecycle position.
type State int32

const (
	StateIdle State = iota
	StateLoading
	StateLive
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateLive:
		return "live"
	default:
		return "idle"
	}
}

// Stream maintains an ordered, deduplicated view of one conversation's
// messages for one user. Opening a conversation loads history and attaches to
// the change feed; a concurrent push and an in-flight history load may target
// the held sequence at the same time, so every merge goes through the
// identifier-checked path under the mutex.
type Stream struct {
	userID        string
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	broker        *feed.Broker
	log           zerolog.Logger

	mu             sync.Mutex
	state          State
	conversationID string
	generation     int
	seq            []models.Message
	seen           map[string]struct{}
	sub            *feed.Subscription
	listeners      map[int]func(models.StreamEvent)
	nextListener   int
}

// New builds an idle stream for the given user.
func New(userID string, conversations repositories.ConversationRepository, messages repositories.MessageRepository, broker *feed.Broker, log zerolog.Logger) *Stream {
	return &Stream{
		userID:        userID,
		conversations: conversations,
		messages:      messages,
		broker:        broker,
		log:           log.With().Str("component", "stream").Str("user_id", userID).Logger(),
		listeners:     make(map[int]func(models.StreamEvent)),
	}
}

// Open selects a conversation: any previous subscription is torn down first,
// the change feed is attached before the history fetch so nothing inserted
// during the load is missed, and incoming messages are marked read once the
// history resolves. A stale load that finishes after the stream moved on is
// ignored.
func (s *Stream) Open(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	s.teardownLocked()
	s.generation++
	gen := s.generation
	s.state = StateLoading
	s.conversationID = conversationID
	s.seen = make(map[string]struct{})
	s.sub = s.broker.Subscribe(conversationID)
	sub := s.sub
	s.mu.Unlock()

	go s.pump(sub, gen)

	history, err := s.messages.ListMessages(ctx, conversationID)
	if err != nil {
		s.mu.Lock()
		if s.generation == gen {
			s.teardownLocked()
		}
		s.mu.Unlock()
		observability.IncStreamOpen("error")
		return fmt.Errorf("load history: %w", err)
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return nil
	}
	hadUnreadIncoming := false
	for _, msg := range history {
		if msg.SenderID != s.userID && !msg.IsRead {
			hadUnreadIncoming = true
			msg.IsRead = true
		}
		s.mergeLocked(msg)
	}
	s.state = StateLive
	snapshot := s.snapshotLocked()
	s.notifyLocked(models.StreamEvent{Type: models.EventSnapshot, Messages: snapshot})
	s.mu.Unlock()

	if hadUnreadIncoming {
		s.markReadRemote(ctx, conversationID)
	}
	observability.IncStreamOpen("ok")
	return nil
}

// State reports the current lifecycle position.
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns a copy of the held sequence, sorted ascending by creation
// time with arrival order preserved for equal timestamps.
func (s *Stream) Snapshot() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Listen registers a callback for stream events and returns its remover.
// Callbacks run with the stream lock held and must not call back into the
// stream; hand the event off to a channel for anything slow.
func (s *Stream) Listen(fn func(models.StreamEvent)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Send stores a message in the open conversation. Empty or whitespace-only
// text is a silent local no-op: zero writes, nil error, sent=false. After the
// insert the conversation preview is refreshed; a preview failure leaves the
// message in place and is only logged.
func (s *Stream) Send(ctx context.Context, text string) (models.Message, bool, error) {
	if strings.TrimSpace(text) == "" {
		return models.Message{}, false, nil
	}

	s.mu.Lock()
	if s.state == StateIdle {
		s.mu.Unlock()
		return models.Message{}, false, ErrNotOpen
	}
	conversationID := s.conversationID
	s.mu.Unlock()

	msg, err := s.messages.CreateMessage(ctx, conversationID, s.userID, text)
	if err != nil {
		return models.Message{}, false, fmt.Errorf("store message: %w", err)
	}

	s.mu.Lock()
	if s.conversationID == conversationID {
		if s.mergeLocked(msg) {
			s.notifyLocked(models.StreamEvent{Type: models.EventInsert, Message: &msg})
		}
	}
	s.mu.Unlock()

	if err := s.conversations.UpdateLastMessage(ctx, conversationID, msg.Content, msg.CreatedAt); err != nil {
		s.log.Warn().Err(err).
			Str("conversation_id", conversationID).
			Msg("conversation preview update failed, list preview is stale")
	}

	s.broker.Publish(conversationID, feed.Event{Kind: models.EventInsert, Message: msg})
	return msg, true, nil
}

// MarkRead flags all unread incoming messages as read. Safe to call
// redundantly; the caller's own messages are never touched. When rows actually
// changed, a read receipt fans out so the counterpart's open stream can flip
// its sent messages.
func (s *Stream) MarkRead(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateIdle {
		s.mu.Unlock()
		return ErrNotOpen
	}
	conversationID := s.conversationID
	for i := range s.seq {
		if s.seq[i].SenderID != s.userID {
			s.seq[i].IsRead = true
		}
	}
	s.mu.Unlock()

	updated, err := s.messages.MarkConversationRead(ctx, conversationID, s.userID)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if updated > 0 {
		s.broker.Publish(conversationID, feed.Event{Kind: models.EventUpdate, Reader: s.userID})
	}
	return nil
}

// ConversationID returns the selected conversation, empty when idle.
func (s *Stream) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// Close tears down the subscription and empties the view.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()
}

func (s *Stream) pump(sub *feed.Subscription, gen int) {
	for event := range sub.Events() {
		switch event.Kind {
		case models.EventInsert:
			s.pumpInsert(event.Message, gen)
		case models.EventUpdate:
			s.applyReadReceipt(event.Reader, gen)
		}
	}
}

func (s *Stream) pumpInsert(msg models.Message, gen int) {
	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return
	}
	incoming := msg.SenderID != s.userID
	if incoming {
		msg.IsRead = true
	}
	merged := s.mergeLocked(msg)
	if merged {
		s.notifyLocked(models.StreamEvent{Type: models.EventInsert, Message: &msg})
	}
	conversationID := s.conversationID
	s.mu.Unlock()

	if merged && incoming {
		s.markReadRemote(context.Background(), conversationID)
	}
}

// applyReadReceipt flips the user's own messages to read after the
// counterpart marked the conversation read. The user's own receipts echo back
// over the feed and are skipped.
func (s *Stream) applyReadReceipt(reader string, gen int) {
	if reader == s.userID {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return
	}
	changed := false
	for i := range s.seq {
		if s.seq[i].SenderID == s.userID && !s.seq[i].IsRead {
			s.seq[i].IsRead = true
			changed = true
		}
	}
	if changed {
		s.notifyLocked(models.StreamEvent{Type: models.EventUpdate, Messages: s.snapshotLocked()})
	}
}

// mergeLocked inserts the message unless its identifier is already held.
// This is the sole dedup point, shared by history loads, the sender's own
// echo and feed pushes, so it must hold under arbitrary interleaving.
func (s *Stream) mergeLocked(msg models.Message) bool {
	if msg.ConversationID != s.conversationID {
		return false
	}
	if _, ok := s.seen[msg.ID]; ok {
		return false
	}
	s.seen[msg.ID] = struct{}{}
	s.seq = append(s.seq, msg)
	if n := len(s.seq); n > 1 && s.seq[n-1].CreatedAt.Before(s.seq[n-2].CreatedAt) {
		sort.SliceStable(s.seq, func(i, j int) bool {
			return s.seq[i].CreatedAt.Before(s.seq[j].CreatedAt)
		})
	}
	return true
}

func (s *Stream) snapshotLocked() []models.Message {
	out := make([]models.Message, len(s.seq))
	copy(out, s.seq)
	return out
}

func (s *Stream) notifyLocked(event models.StreamEvent) {
	for _, fn := range s.listeners {
		fn(event)
	}
}

func (s *Stream) teardownLocked() {
	if s.sub != nil {
		s.sub.Cancel()
		s.sub = nil
	}
	s.generation++
	s.state = StateIdle
	s.conversationID = ""
	s.seq = nil
	s.seen = nil
}

func (s *Stream) markReadRemote(ctx context.Context, conversationID string) {
	updated, err := s.messages.MarkConversationRead(ctx, conversationID, s.userID)
	if err != nil {
		s.log.Warn().Err(err).
			Str("conversation_id", conversationID).
			Msg("mark read failed")
		return
	}
	if updated > 0 {
		s.broker.Publish(conversationID, feed.Event{Kind: models.EventUpdate, Reader: s.userID})
	}
}
