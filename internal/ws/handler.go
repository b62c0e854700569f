package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"recipe-realtime/internal/logging"
	"recipe-realtime/internal/observability"
)

// TokenParser resolves a bearer token to a user id.
type TokenParser interface {
	ParseToken(token string) (string, error)
}

// Handler upgrades HTTP requests to gateway sessions.
type Handler struct {
	hub        *Hub
	tokens     TokenParser
	sendBuffer int
	upgrader   websocket.Upgrader
}

// NewHandler constructs a Handler. A nil tokens parser accepts anonymous
// upgrades and trusts the join payload.
func NewHandler(hub *Hub, tokens TokenParser, sendBuffer int) *Handler {
	return &Handler{
		hub:        hub,
		tokens:     tokens,
		sendBuffer: sendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handle upgrades the connection and starts its pumps.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("recipe-realtime/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := bearerToken(c.GetHeader("Authorization"))
	if token == "" {
		token = c.Query("token")
	}

	var userID string
	if h.tokens != nil {
		id, err := h.tokens.ParseToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		userID = id
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	requestID := logging.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = observability.RequestIDFromRequest(c.Request)
	}
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}

	client := newClient(conn, info.ConnID, h.sendBuffer)
	session := NewSession(client, info)
	connCtx := logging.ContextWithRequestID(context.WithoutCancel(ctx), requestID)

	if err := h.hub.Connect(connCtx, session); err != nil {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, err.Error()), time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	go client.writePump()
	go func() {
		reason := client.readPump(connCtx, h.hub, session)
		h.hub.Disconnect(connCtx, session, reason)
	}()
}
