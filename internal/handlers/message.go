package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"messaging-service/internal/feed"
	"messaging-service/internal/middleware"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
)

// MessageHandler manages message history, sending and read-tracking.
type MessageHandler struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	broker        *feed.Broker
	emitter       *telemetry.Emitter
	log           zerolog.Logger
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(conversations repositories.ConversationRepository, messages repositories.MessageRepository, broker *feed.Broker, emitter *telemetry.Emitter, log zerolog.Logger) *MessageHandler {
	return &MessageHandler{
		conversations: conversations,
		messages:      messages,
		broker:        broker,
		emitter:       emitter,
		log:           log,
	}
}

// GetMessages returns the conversation history in creation order and marks
// incoming messages as read.
func (h *MessageHandler) GetMessages(c *gin.Context) {
	conversationID := c.Param("conversation_id")
	userID := middleware.UserID(c)

	if !h.requireParticipant(c, conversationID, userID) {
		return
	}

	msgs, err := h.messages.ListMessages(c.Request.Context(), conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	updated, err := h.messages.MarkConversationRead(c.Request.Context(), conversationID, userID)
	if err != nil {
		h.log.Warn().Err(err).Str("conversation_id", conversationID).Msg("mark read after load failed")
	} else {
		for i := range msgs {
			if msgs[i].SenderID != userID {
				msgs[i].IsRead = true
			}
		}
		if updated > 0 {
			h.broker.Publish(conversationID, feed.Event{Kind: models.EventUpdate, Reader: userID})
		}
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostMessage stores a message, refreshes the conversation preview and fans
// the row out on the change feed. Whitespace-only content performs no writes.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	conversationID := c.Param("conversation_id")
	userID := middleware.UserID(c)

	conv, err := h.conversations.GetConversation(c.Request.Context(), conversationID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrConversationNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "conversation not found"})
		return
	}

	if !h.requireParticipant(c, conv.ID, userID) {
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if strings.TrimSpace(req.Content) == "" {
		c.Status(http.StatusNoContent)
		return
	}

	msg, err := h.messages.CreateMessage(c.Request.Context(), conversationID, userID, req.Content)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	if err := h.conversations.UpdateLastMessage(c.Request.Context(), conversationID, msg.Content, msg.CreatedAt); err != nil {
		h.log.Warn().Err(err).
			Str("conversation_id", conversationID).
			Msg("conversation preview update failed, list preview is stale")
	}

	h.broker.Publish(conversationID, feed.Event{Kind: models.EventInsert, Message: msg})
	h.emitter.Emit(c.Request.Context(), telemetry.RouteMessageCreated, "message_created", userID, gin.H{
		"conversation_id": conversationID,
		"message_id":      msg.ID,
	})

	c.JSON(http.StatusCreated, msg)
}

// MarkRead flags every unread incoming message in the conversation as read.
// Idempotent.
func (h *MessageHandler) MarkRead(c *gin.Context) {
	conversationID := c.Param("conversation_id")
	userID := middleware.UserID(c)

	if !h.requireParticipant(c, conversationID, userID) {
		return
	}

	updated, err := h.messages.MarkConversationRead(c.Request.Context(), conversationID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark read"})
		return
	}
	if updated > 0 {
		h.broker.Publish(conversationID, feed.Event{Kind: models.EventUpdate, Reader: userID})
	}

	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

func (h *MessageHandler) participant(ctx context.Context, conversationID, userID string) error {
	member, err := h.conversations.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if !member {
		return repositories.ErrNotParticipant
	}
	return nil
}

func (h *MessageHandler) requireParticipant(c *gin.Context, conversationID, userID string) bool {
	switch err := h.participant(c.Request.Context(), conversationID, userID); {
	case errors.Is(err, repositories.ErrNotParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": repositories.ErrNotParticipant.Error()})
		return false
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return false
	}
	return true
}
