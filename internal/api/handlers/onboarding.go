package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/sentinel-ops/sentinel-backend-go/pkg/utils"
)

// TriggerDiscovery runs one resource discovery pass immediately
func (h *Handlers) TriggerDiscovery(c *gin.Context) {
	onboarded := h.discovery.Run(c.Request.Context())
	utils.SendSuccess(c, gin.H{"onboarded": onboarded})
}
