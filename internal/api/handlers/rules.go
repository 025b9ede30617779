package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sentinel-ops/sentinel-backend-go/pkg/utils"
)

// ListRules returns the currently loaded threshold rules
func (h *Handlers) ListRules(c *gin.Context) {
	utils.SendSuccess(c, h.loader.Rules())
}

// ReloadRules forces a reload of the rules file, outside the file watcher
func (h *Handlers) ReloadRules(c *gin.Context) {
	if err := h.loader.Load(); err != nil {
		h.log.WithError(err).Error("Failed to reload rules")
		utils.SendError(c, http.StatusInternalServerError, "Failed to reload rules")
		return
	}

	utils.SendSuccess(c, gin.H{"loaded": len(h.loader.Rules())})
}
