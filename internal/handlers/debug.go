package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/middleware"
	"messaging-service/internal/telemetry"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.Emitter, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/event-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), telemetry.RouteWSEvents, "event_test", middleware.UserID(c), gin.H{"probe": true})
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
