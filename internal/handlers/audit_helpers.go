package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"recipe-realtime/internal/apperr"
	"recipe-realtime/internal/logging"
)

const requestIDContextKey = "requestID"

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) *string {
	if id := callerID(c); id != "" {
		return &id
	}
	return nil
}

// callerID is the authenticated user set by the auth middleware.
func callerID(c *gin.Context) string {
	return c.GetString("userID")
}

// requireCaller aborts with 401 when no user is attached to the request.
func requireCaller(c *gin.Context) (string, bool) {
	id := callerID(c)
	if id == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user"})
		return "", false
	}
	return id, true
}

// requireSelf allows a request on a user's resources only when that user is
// the caller. It returns the normalized user id.
func requireSelf(c *gin.Context, raw string) (string, bool) {
	userID, ok := parseID(c, raw, "user")
	if !ok {
		return "", false
	}
	caller, ok := requireCaller(c)
	if !ok {
		return "", false
	}
	if caller != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed"})
		return "", false
	}
	return userID, true
}

func parseID(c *gin.Context, raw, label string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if uuid.Validate(raw) != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + label + " id"})
		return "", false
	}
	return raw, true
}

func parsePaging(c *gin.Context) (int, int, bool) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return 0, 0, false
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
		return 0, 0, false
	}
	return limit, offset, true
}

// respondError maps a store error to its status. Internal errors are logged
// and masked.
func respondError(c *gin.Context, err error, fallback string) {
	status := apperr.Status(err)
	if status == http.StatusInternalServerError {
		logging.Ctx(c.Request.Context()).Error().Err(err).Str("route", c.FullPath()).Msg(fallback)
		c.JSON(status, gin.H{"error": fallback})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
