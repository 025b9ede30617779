package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sentinel-ops/sentinel-backend-go/internal/database/repositories"
	"github.com/sentinel-ops/sentinel-backend-go/pkg/utils"
)

// ListAuditLogs returns audit records, newest first, filtered by query params
func (h *Handlers) ListAuditLogs(c *gin.Context) {
	filter := repositories.AuditFilter{
		AlertID:   c.Query("alert_id"),
		EventType: c.Query("event_type"),
		Limit:     intQuery(c, "limit", 50),
		Offset:    intQuery(c, "offset", 0),
	}

	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			utils.SendError(c, http.StatusBadRequest, "Invalid since timestamp, expected RFC3339")
			return
		}
		filter.Since = &since
	}
	if raw := c.Query("until"); raw != "" {
		until, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			utils.SendError(c, http.StatusBadRequest, "Invalid until timestamp, expected RFC3339")
			return
		}
		filter.Until = &until
	}

	records, total, err := h.repos.Audit.List(c.Request.Context(), filter)
	if err != nil {
		h.log.WithError(err).Error("Failed to list audit records")
		utils.SendError(c, http.StatusInternalServerError, "Failed to list audit records")
		return
	}

	utils.SendSuccessWithMeta(c, records, utils.PageMeta{
		Offset: filter.Offset,
		Limit:  filter.Limit,
		Total:  total,
	})
}

// VerifyAuditChain walks the whole audit chain and reports the first broken
// link, if any
func (h *Handlers) VerifyAuditChain(c *gin.Context) {
	result, err := h.auditor.Verify(c.Request.Context())
	if err != nil {
		h.log.WithError(err).Error("Audit chain verification failed")
		utils.SendError(c, http.StatusInternalServerError, "Failed to verify audit chain")
		return
	}

	utils.SendSuccess(c, result)
}
