package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/directory"
	"messaging-service/internal/middleware"
	"messaging-service/internal/telemetry"
)

// ConversationHandler manages conversation discovery and creation endpoints.
type ConversationHandler struct {
	directory *directory.Directory
	emitter   *telemetry.Emitter
}

// NewConversationHandler builds a ConversationHandler.
func NewConversationHandler(dir *directory.Directory, emitter *telemetry.Emitter) *ConversationHandler {
	return &ConversationHandler{directory: dir, emitter: emitter}
}

// ListConversations returns the conversations of the authenticated user,
// newest activity first.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	userID := middleware.UserID(c)

	summaries, err := h.directory.ListConversations(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": summaries})
}

// StartConversation finds or creates the 1:1 conversation with the target
// user. Repeating the call for the same pair returns the same conversation.
func (h *ConversationHandler) StartConversation(c *gin.Context) {
	var req struct {
		TargetUserID string `json:"target_user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := middleware.UserID(c)
	conv, created, err := h.directory.StartConversation(c.Request.Context(), userID, req.TargetUserID)
	if err != nil {
		switch {
		case errors.Is(err, directory.ErrInvalidTarget):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation target"})
		case errors.Is(err, directory.ErrCreationFailed):
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create conversation"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not start conversation"})
		}
		return
	}

	if created {
		h.emitter.Emit(c.Request.Context(), telemetry.RouteConversationCreated, "conversation_created", userID, gin.H{
			"conversation_id": conv.ID,
			"target_user_id":  req.TargetUserID,
		})
	}

	c.JSON(http.StatusOK, gin.H{"conversation_id": conv.ID, "created": created})
}
