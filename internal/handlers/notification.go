package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"recipe-realtime/internal/models"
)

// NotificationService is the notification store used by the notification endpoints.
type NotificationService interface {
	Create(ctx context.Context, userID string, typ models.NotificationType, content string, meta models.Metadata) (models.Notification, error)
	List(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]models.Notification, error)
	GetCounts(ctx context.Context, userID string) (models.NotificationCounts, error)
	MarkRead(ctx context.Context, id, userID string) error
	MarkAllRead(ctx context.Context, userID string) (int, error)
}

// NotificationHandler serves notification endpoints.
type NotificationHandler struct {
	notifications NotificationService
}

// NewNotificationHandler builds a NotificationHandler.
func NewNotificationHandler(notifications NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// Create stores a notification for a recipient. Identical notifications
// inside the dedup window return the existing record.
func (h *NotificationHandler) Create(c *gin.Context) {
	var req struct {
		UserID   string          `json:"userId" binding:"required"`
		Type     string          `json:"type" binding:"required"`
		Content  string          `json:"content" binding:"required"`
		Metadata json.RawMessage `json:"metadata"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID, ok := parseID(c, req.UserID, "user")
	if !ok {
		return
	}

	typ := models.NotificationType(req.Type)
	meta, err := models.DecodeMetadata(typ, req.Metadata)
	if err != nil {
		respondError(c, err, "invalid metadata")
		return
	}

	n, err := h.notifications.Create(c.Request.Context(), userID, typ, req.Content, meta)
	if err != nil {
		respondError(c, err, "could not create notification")
		return
	}
	c.JSON(http.StatusCreated, n)
}

// List returns the caller's notifications.
func (h *NotificationHandler) List(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	h.list(c, caller)
}

// ListForUser returns a user's notifications; only the user may read them.
func (h *NotificationHandler) ListForUser(c *gin.Context) {
	userID, ok := requireSelf(c, c.Param("userId"))
	if !ok {
		return
	}
	h.list(c, userID)
}

func (h *NotificationHandler) list(c *gin.Context, userID string) {
	limit, offset, ok := parsePaging(c)
	if !ok {
		return
	}
	unreadOnly, err := strconv.ParseBool(c.DefaultQuery("unread", "false"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid unread flag"})
		return
	}

	list, err := h.notifications.List(c.Request.Context(), userID, unreadOnly, limit, offset)
	if err != nil {
		respondError(c, err, "failed to load notifications")
		return
	}
	if list == nil {
		list = []models.Notification{}
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list})
}

// Counts returns the caller's unread badge counts.
func (h *NotificationHandler) Counts(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	counts, err := h.notifications.GetCounts(c.Request.Context(), caller)
	if err != nil {
		respondError(c, err, "failed to count notifications")
		return
	}
	c.JSON(http.StatusOK, counts)
}

// MarkRead flags one of the caller's notifications as read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, ok := parseID(c, c.Param("id"), "notification")
	if !ok {
		return
	}
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	if err := h.notifications.MarkRead(c.Request.Context(), id, caller); err != nil {
		respondError(c, err, "could not mark notification read")
		return
	}
	c.Status(http.StatusNoContent)
}

// MarkAllRead flags all of the caller's notifications as read.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	count, err := h.notifications.MarkAllRead(c.Request.Context(), caller)
	if err != nil {
		respondError(c, err, "could not mark notifications read")
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}
