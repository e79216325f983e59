package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
	"messaging-service/internal/ws"
)

const defaultMessagePage = 50

// ConversationHandler manages conversation and message endpoints. Sends and
// deletes go through the hub so REST calls share the persist-then-broadcast
// path (and its ordering guarantee) with socket traffic.
type ConversationHandler struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	hub           *ws.Hub
	audit         *telemetry.AuditEmitter
}

// NewConversationHandler builds a ConversationHandler.
func NewConversationHandler(conversations repositories.ConversationRepository, messages repositories.MessageRepository, hub *ws.Hub, audit *telemetry.AuditEmitter) *ConversationHandler {
	return &ConversationHandler{
		conversations: conversations,
		messages:      messages,
		hub:           hub,
		audit:         audit,
	}
}

// CreateConversation handles POST /conversations. The creator always becomes
// the admin participant.
func (h *ConversationHandler) CreateConversation(c *gin.Context) {
	userID := c.GetString("userID")

	var req struct {
		Type           string   `json:"type" binding:"required"`
		Name           string   `json:"name"`
		ParticipantIDs []string `json:"participant_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !models.ValidConversationType(req.Type) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "type must be direct or group"})
		return
	}

	conv, err := h.conversations.CreateConversation(c.Request.Context(), userID, req.Type, req.Name, req.ParticipantIDs)
	if err != nil {
		h.emitAudit(c, "ERROR", "could not create conversation")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create conversation"})
		return
	}

	h.emitAudit(c, "INFO", "conversation created")
	c.JSON(http.StatusCreated, conv)
}

// ListConversations returns the caller's conversations, most recently active
// first.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	userID := c.GetString("userID")
	convs, err := h.conversations.ListConversationsForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

// GetConversation returns one conversation with participants; non-participants
// see a 404.
func (h *ConversationHandler) GetConversation(c *gin.Context) {
	userID := c.GetString("userID")
	conv, err := h.conversations.GetConversation(c.Request.Context(), c.Param("conversation_id"), userID)
	if err != nil {
		if errors.Is(err, repositories.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation"})
		return
	}
	c.JSON(http.StatusOK, conv)
}

// GetMessages returns a page of non-deleted messages, newest first.
func (h *ConversationHandler) GetMessages(c *gin.Context) {
	conversationID := c.Param("conversation_id")
	userID := c.GetString("userID")

	member, err := h.conversations.IsParticipant(c.Request.Context(), conversationID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
		return
	}

	skip := intQuery(c, "skip", 0)
	take := intQuery(c, "take", defaultMessagePage)
	msgs, err := h.messages.ListMessages(c.Request.Context(), conversationID, skip, take)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostMessage stores a message and broadcasts it to the conversation's room.
func (h *ConversationHandler) PostMessage(c *gin.Context) {
	userID := c.GetString("userID")

	var req struct {
		Content     string `json:"content" binding:"required"`
		MessageType string `json:"message_type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.hub.SendMessage(c.Request.Context(), userID, c.Param("conversation_id"), req.Content, req.MessageType)
	if err != nil {
		switch {
		case errors.Is(err, ws.ErrForbidden):
			h.emitAudit(c, "ERROR", "message rejected: not a participant")
			c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
		case errors.Is(err, ws.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.emitAudit(c, "ERROR", "failed to store message")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		}
		return
	}

	h.emitAudit(c, "INFO", "message sent")
	c.JSON(http.StatusCreated, msg)
}

// DeleteMessage soft-deletes a message; only its sender may do so, and a
// non-sender learns nothing beyond "not found".
func (h *ConversationHandler) DeleteMessage(c *gin.Context) {
	userID := c.GetString("userID")

	if _, err := h.hub.DeleteMessage(c.Request.Context(), userID, c.Param("message_id")); err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}
		h.emitAudit(c, "ERROR", "failed to delete message")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete message"})
		return
	}

	h.emitAudit(c, "INFO", "message deleted")
	c.Status(http.StatusNoContent)
}

func (h *ConversationHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 0 {
		return fallback
	}
	return val
}
