package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"messaging-service/internal/db"
)

// HealthHandler reports datastore reachability.
type HealthHandler struct {
	db          *sqlx.DB
	pingTimeout time.Duration
}

// NewHealthHandler builds a HealthHandler.
func NewHealthHandler(conn *sqlx.DB, pingTimeout time.Duration) *HealthHandler {
	return &HealthHandler{db: conn, pingTimeout: pingTimeout}
}

// Healthz answers 200 when the datastore responds within the bound and 503
// otherwise.
func (h *HealthHandler) Healthz(c *gin.Context) {
	if err := db.Ping(c.Request.Context(), h.db, h.pingTimeout); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
