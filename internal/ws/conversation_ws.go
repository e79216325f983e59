package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
	"messaging-service/internal/token"
)

// ConversationWSHandler upgrades connections and feeds inbound events to the hub.
type ConversationWSHandler struct {
	hub    *Hub
	tokens *token.Manager
}

// NewConversationWSHandler constructs a ConversationWSHandler.
func NewConversationWSHandler(hub *Hub, tokens *token.Manager) *ConversationWSHandler {
	return &ConversationWSHandler{hub: hub, tokens: tokens}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates, upgrades and registers the session, then serves its
// read loop. Identity is established exactly once, here; every later event
// uses the session handle.
func (h *ConversationWSHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("messaging-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	raw := c.GetHeader("Authorization")
	if raw != "" {
		raw = stripBearer(raw)
	} else {
		raw = c.Query("token")
	}

	userID, err := h.tokens.Validate(raw)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	s := NewSession(userID, conn)
	s.DeviceID = observability.DeviceIDFromRequest(c.Request)
	s.IP = observability.IPFromRequest(c.Request)
	s.RequestID = observability.RequestIDFromRequest(c.Request)
	s.TraceID = span.SpanContext().TraceID().String()

	h.hub.Connect(s)
	go s.WriteLoop()

	observability.IncWSActive("session")
	observability.IncWSEvent("session", "ws_connect")
	publishSessionEvent(ctx, s, "ws_connect", "")

	// The request context is cancelled as soon as this handler returns, but
	// the session outlives it. The read loop keeps the trace values without
	// the cancellation.
	go h.readLoop(context.WithoutCancel(ctx), s)
}

func (h *ConversationWSHandler) readLoop(ctx context.Context, s *Session) {
	var closeReason string
	defer func() {
		h.hub.Disconnect(s)
		observability.DecWSActive("session")
		observability.IncWSEvent("session", "ws_disconnect")
		publishSessionEvent(ctx, s, "ws_disconnect", closeReason)
	}()

	for {
		var event models.ClientEvent
		if err := s.conn.ReadJSON(&event); err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("session", "ws_error")
				publishSessionEvent(ctx, s, "ws_error", closeReason)
			}
			return
		}
		h.dispatch(ctx, s, event)
	}
}

// dispatch validates one inbound event and applies it. Failures are terminal
// for the event only: an error frame goes back to this session and nothing
// else is mutated or broadcast.
func (h *ConversationWSHandler) dispatch(ctx context.Context, s *Session, event models.ClientEvent) {
	if err := event.Validate(); err != nil {
		// Only validated event names become label values; anything a client
		// invents collapses into one bucket.
		observability.IncWSEvent("session", "invalid")
		h.hub.SendError(s, err.Error())
		return
	}
	observability.IncWSEvent("session", event.Type)

	switch event.Type {
	case models.EventJoinConversation:
		if err := h.hub.JoinConversation(ctx, s, event.ConversationID); err != nil {
			h.hub.SendError(s, errorMessage(err))
		}
	case models.EventLeaveConversation:
		h.hub.LeaveConversation(s, event.ConversationID)
	case models.EventSendMessage:
		if _, err := h.hub.SendMessage(ctx, s.UserID, event.ConversationID, event.Content, event.MessageType); err != nil {
			h.hub.SendError(s, errorMessage(err))
		}
	case models.EventTypingStart:
		h.hub.Typing(s, event.ConversationID, true)
	case models.EventTypingStop:
		h.hub.Typing(s, event.ConversationID, false)
	case models.EventDeleteMessage:
		if _, err := h.hub.DeleteMessage(ctx, s.UserID, event.MessageID); err != nil {
			h.hub.SendError(s, errorMessage(err))
		}
	}
}

// errorMessage maps hub failures onto the messages clients see. Storage and
// other internal failures stay generic.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrForbidden):
		return "not a conversation participant"
	case errors.Is(err, ErrInvalidInput):
		return err.Error()
	case errors.Is(err, repositories.ErrMessageNotFound):
		return "message not found"
	case errors.Is(err, repositories.ErrConversationNotFound):
		return "conversation not found"
	default:
		return "failed to process event"
	}
}

func publishSessionEvent(ctx context.Context, s *Session, event, reason string) {
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       event,
			"session_id":  s.ID,
			"duration_ms": time.Since(s.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   s.UserID,
			"device_id": s.DeviceID,
			"ip":        s.IP,
		},
	}

	headers := observability.BuildHeaders(s.RequestID, s.TraceID)
	_ = observability.PublishEvent(ctx, "ws_events.sessions", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   payload,
	}, headers)
}

func stripBearer(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return header
}
