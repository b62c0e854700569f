package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"recipe-realtime/internal/telemetry"
)

// PresenceLister reports online users.
type PresenceLister interface {
	ListOnline() []string
}

// Pinger checks a backing store.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RegisterHealthRoutes wires the liveness endpoint.
func RegisterHealthRoutes(router *gin.Engine, db Pinger) {
	router.GET("/healthz", func(c *gin.Context) {
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": "database unreachable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, presence PresenceLister, emitter *telemetry.AuditEmitter, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/presence", func(c *gin.Context) {
		online := presence.ListOnline()
		c.JSON(http.StatusOK, gin.H{"online": online, "count": len(online)})
	})

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), "INFO", "debug.audit", "audit test", requestIDFromContext(c), userIDFromContext(c), nil)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
