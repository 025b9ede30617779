package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// GetHealth reports service health, including database reachability and the
// live-feed client count
func (h *Handlers) GetHealth(c *gin.Context) {
	status := "healthy"
	dbStatus := "connected"

	if err := h.db.PingContext(c.Request.Context()); err != nil {
		status = "unhealthy"
		dbStatus = "disconnected"
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":    status,
		"database":  dbStatus,
		"clients":   h.hub.GetClientCount(),
		"rules":     len(h.loader.Rules()),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
