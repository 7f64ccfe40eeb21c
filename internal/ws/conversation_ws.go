package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"messaging-service/internal/feed"
	"messaging-service/internal/middleware"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
	"messaging-service/internal/stream"
	"messaging-service/internal/telemetry"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	outboxSize = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler attaches websocket clients to conversation streams. Each connection
// gets its own stream: a snapshot event on attach, then incremental message
// events from the change feed. Inbound frames carry sends.
type Handler struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	broker        *feed.Broker
	emitter       *telemetry.Emitter
	jwtSecret     string
	log           zerolog.Logger
}

// NewHandler constructs a websocket Handler.
func NewHandler(conversations repositories.ConversationRepository, messages repositories.MessageRepository, broker *feed.Broker, emitter *telemetry.Emitter, jwtSecret string, log zerolog.Logger) *Handler {
	return &Handler{
		conversations: conversations,
		messages:      messages,
		broker:        broker,
		emitter:       emitter,
		jwtSecret:     jwtSecret,
		log:           log.With().Str("component", "ws").Logger(),
	}
}

type inboundFrame struct {
	Content string `json:"content"`
}

// Handle upgrades the connection, verifies membership and bridges the stream
// to the socket.
func (h *Handler) Handle(c *gin.Context) {
	conversationID := c.Param("conversation_id")
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	ctx, span := otel.Tracer("messaging-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, err := h.authenticate(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	member, err := h.conversations.IsParticipant(ctx, conversationID, userID)
	if err != nil || !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a conversation participant"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		ConnID:         uuid.NewString(),
		UserID:         userID,
		ConversationID: conversationID,
		DeviceID:       observability.DeviceIDFromRequest(c.Request),
		IP:             observability.IPFromRequest(c.Request),
		ConnectedAt:    time.Now(),
	}

	str := stream.New(userID, h.conversations, h.messages, h.broker, h.log)
	outbox := make(chan []byte, outboxSize)
	done := make(chan struct{})

	removeListener := str.Listen(func(event models.StreamEvent) {
		payload, err := json.Marshal(event)
		if err != nil {
			return
		}
		select {
		case outbox <- payload:
		default:
			// Slow client: drop the frame; the client recovers by reconnecting
			// and receiving a fresh snapshot.
			observability.IncWSEvent("frame_dropped")
		}
	})

	go h.writeLoop(conn, outbox, done)

	if err := str.Open(ctx, conversationID); err != nil {
		h.log.Error().Err(err).Str("conversation_id", conversationID).Msg("stream open failed")
		removeListener()
		str.Close()
		close(done)
		conn.Close()
		return
	}

	observability.IncWSActive()
	observability.IncWSEvent("connect")
	h.emitWSEvent(ctx, info, "ws_connect", "")

	go h.readLoop(conn, str, info, removeListener, done)
}

func (h *Handler) authenticate(c *gin.Context) (string, error) {
	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.Query("token")
	} else {
		parts := strings.SplitN(token, " ", 2)
		if len(parts) == 2 {
			token = parts[1]
		}
	}
	return middleware.ValidateToken(h.jwtSecret, token)
}

func (h *Handler) writeLoop(conn *websocket.Conn, outbox <-chan []byte, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case payload := <-outbox:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				conn.Close()
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		}
	}
}

func (h *Handler) readLoop(conn *websocket.Conn, str *stream.Stream, info ConnInfo, removeListener func(), done chan struct{}) {
	var closeReason string
	defer func() {
		removeListener()
		str.Close()
		close(done)
		conn.Close()
		observability.DecWSActive()
		observability.IncWSEvent("disconnect")
		h.emitWSEvent(context.Background(), info, "ws_disconnect", closeReason)
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("error")
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue
		}
		if _, _, err := str.Send(context.Background(), frame.Content); err != nil {
			h.log.Warn().Err(err).
				Str("conversation_id", info.ConversationID).
				Str("user_id", info.UserID).
				Msg("ws send failed")
		}
	}
}

func (h *Handler) emitWSEvent(ctx context.Context, info ConnInfo, event, reason string) {
	h.emitter.Emit(ctx, telemetry.RouteWSEvents, event, info.UserID, map[string]any{
		"conversation_id": info.ConversationID,
		"conn_id":         info.ConnID,
		"device_id":       info.DeviceID,
		"ip":              info.IP,
		"duration_ms":     time.Since(info.ConnectedAt).Milliseconds(),
		"reason":          reason,
	})
}
