package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"recipe-realtime/internal/models"
	"recipe-realtime/internal/telemetry"
)

// ChatService is the message store used by the chat endpoints.
type ChatService interface {
	CreateChat(ctx context.Context, user1ID, user2ID string) (models.Chat, error)
	SendMessage(ctx context.Context, chatID, senderID, content string) (models.Message, error)
	MarkMessageRead(ctx context.Context, messageID, readerID string) error
	MarkChatRead(ctx context.Context, chatID, readerID string) (int, error)
	GetUnreadCount(ctx context.Context, userID string) (int, error)
	SearchMessages(ctx context.Context, userID, query string) ([]models.Message, error)
	ListUserChats(ctx context.Context, userID string) ([]models.ChatView, error)
	ListMessages(ctx context.Context, chatID, readerID string, limit, offset int) ([]models.Message, error)
}

// ChatHandler manages private chat endpoints.
type ChatHandler struct {
	chats ChatService
	audit *telemetry.AuditEmitter
}

// NewChatHandler builds a ChatHandler. audit may be nil.
func NewChatHandler(chats ChatService, audit *telemetry.AuditEmitter) *ChatHandler {
	return &ChatHandler{chats: chats, audit: audit}
}

// CreateChat returns the chat between the caller and another user, creating
// it when missing.
func (h *ChatHandler) CreateChat(c *gin.Context) {
	var req struct {
		User1ID string `json:"user1Id"`
		User2ID string `json:"user2Id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	if req.User1ID == "" {
		req.User1ID = caller
	}
	if req.User1ID != caller && req.User2ID != caller {
		c.JSON(http.StatusForbidden, gin.H{"error": "caller must be a participant"})
		return
	}
	if _, ok := parseID(c, req.User1ID, "user"); !ok {
		return
	}
	if _, ok := parseID(c, req.User2ID, "user"); !ok {
		return
	}

	chat, err := h.chats.CreateChat(c.Request.Context(), req.User1ID, req.User2ID)
	if err != nil {
		respondError(c, err, "could not create chat")
		return
	}

	h.audit.Emit(c.Request.Context(), "INFO", "chat.create", "chat opened", requestIDFromContext(c), userIDFromContext(c), map[string]string{"chat_id": chat.ID})
	c.JSON(http.StatusOK, gin.H{"chat": chat})
}

// ListUserChats returns the user's chats with participant profiles.
func (h *ChatHandler) ListUserChats(c *gin.Context) {
	userID, ok := requireSelf(c, c.Param("userId"))
	if !ok {
		return
	}

	chats, err := h.chats.ListUserChats(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "failed to load chats")
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// ListMessages returns a page of messages of one chat.
func (h *ChatHandler) ListMessages(c *gin.Context) {
	chatID, ok := parseID(c, c.Param("chatId"), "chat")
	if !ok {
		return
	}
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	limit, offset, ok := parsePaging(c)
	if !ok {
		return
	}

	msgs, err := h.chats.ListMessages(c.Request.Context(), chatID, caller, limit, offset)
	if err != nil {
		respondError(c, err, "failed to load messages")
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// SendMessage stores a message from the caller.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req struct {
		ChatID   string `json:"chatId" binding:"required"`
		SenderID string `json:"senderId"`
		Content  string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	chatID, ok := parseID(c, req.ChatID, "chat")
	if !ok {
		return
	}
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	if req.SenderID != "" && req.SenderID != caller {
		c.JSON(http.StatusForbidden, gin.H{"error": "cannot send as another user"})
		return
	}

	msg, err := h.chats.SendMessage(c.Request.Context(), chatID, caller, req.Content)
	if err != nil {
		respondError(c, err, "failed to store message")
		return
	}

	h.audit.Emit(c.Request.Context(), "INFO", "chat.message", "message sent", requestIDFromContext(c), userIDFromContext(c), map[string]string{"chat_id": msg.ChatID, "message_id": msg.ID})
	c.JSON(http.StatusCreated, msg)
}

// MarkMessageRead flags one message as read.
func (h *ChatHandler) MarkMessageRead(c *gin.Context) {
	messageID, ok := parseID(c, c.Param("id"), "message")
	if !ok {
		return
	}
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	if err := h.chats.MarkMessageRead(c.Request.Context(), messageID, caller); err != nil {
		respondError(c, err, "could not mark message read")
		return
	}
	c.Status(http.StatusNoContent)
}

// MarkChatRead flags the counterpart's unread messages in a chat as read.
func (h *ChatHandler) MarkChatRead(c *gin.Context) {
	chatID, ok := parseID(c, c.Param("chatId"), "chat")
	if !ok {
		return
	}
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	count, err := h.chats.MarkChatRead(c.Request.Context(), chatID, caller)
	if err != nil {
		respondError(c, err, "could not mark chat read")
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

// UnreadCount returns the user's unread message count.
func (h *ChatHandler) UnreadCount(c *gin.Context) {
	userID, ok := requireSelf(c, c.Param("userId"))
	if !ok {
		return
	}

	count, err := h.chats.GetUnreadCount(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "failed to count unread messages")
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

// SearchMessages finds messages in the user's chats containing q.
func (h *ChatHandler) SearchMessages(c *gin.Context) {
	userID, ok := requireSelf(c, c.Param("userId"))
	if !ok {
		return
	}
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query"})
		return
	}

	msgs, err := h.chats.SearchMessages(c.Request.Context(), userID, query)
	if err != nil {
		respondError(c, err, "search failed")
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}
