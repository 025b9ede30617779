package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sentinel-ops/sentinel-backend-go/internal/database/repositories"
	"github.com/sentinel-ops/sentinel-backend-go/pkg/utils"
)

// ListAlerts returns alert instances, newest first, filtered by query params
func (h *Handlers) ListAlerts(c *gin.Context) {
	filter := repositories.AlertFilter{
		State:      c.Query("state"),
		Severity:   c.Query("severity"),
		RuleID:     c.Query("rule_id"),
		ResourceID: c.Query("resource_id"),
		Limit:      intQuery(c, "limit", 50),
		Offset:     intQuery(c, "offset", 0),
	}

	alerts, total, err := h.repos.Alert.List(c.Request.Context(), filter)
	if err != nil {
		h.log.WithError(err).Error("Failed to list alerts")
		utils.SendError(c, http.StatusInternalServerError, "Failed to list alerts")
		return
	}

	utils.SendSuccessWithMeta(c, alerts, utils.PageMeta{
		Offset: filter.Offset,
		Limit:  filter.Limit,
		Total:  total,
	})
}

// GetAlert returns one alert instance by ID
func (h *Handlers) GetAlert(c *gin.Context) {
	alert, err := h.repos.Alert.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.SendError(c, http.StatusNotFound, "Alert not found")
		return
	}

	utils.SendSuccess(c, alert)
}

type resolveRequest struct {
	Actor string `json:"actor"`
}

// ResolveAlert resolves an alert manually. The transition goes through the
// same state machine and audit path as automatic resolution.
func (h *Handlers) ResolveAlert(c *gin.Context) {
	var req resolveRequest
	_ = c.ShouldBindJSON(&req)
	if req.Actor == "" {
		req.Actor = "operator"
	}

	alert, err := h.machine.ResolveManual(c.Request.Context(), c.Param("id"), req.Actor)
	if err != nil {
		h.log.WithError(err).WithField("alert_id", c.Param("id")).Error("Manual resolve failed")
		utils.SendError(c, http.StatusInternalServerError, "Failed to resolve alert")
		return
	}

	utils.SendSuccess(c, alert)
}

type securityAlertRequest struct {
	ResourceID string   `json:"resource_id" binding:"required"`
	Message    string   `json:"message" binding:"required"`
	Actor      string   `json:"actor"`
	Channels   []string `json:"channels"`
}

// RaiseSecurityAlert raises an immediately-active security alert for a
// resource, bypassing threshold evaluation. Idempotent while an instance is
// open for the resource.
func (h *Handlers) RaiseSecurityAlert(c *gin.Context) {
	var req securityAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, "resource_id and message are required")
		return
	}
	if req.Actor == "" {
		req.Actor = "operator"
	}

	alert, err := h.machine.RaiseSecurity(c.Request.Context(), req.ResourceID, req.Message, req.Actor, req.Channels)
	if err != nil {
		h.log.WithError(err).WithField("resource_id", req.ResourceID).Error("Failed to raise security alert")
		utils.SendError(c, http.StatusInternalServerError, "Failed to raise security alert")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "data": alert})
}

// ListAlertDeliveries returns the delivery attempt history for an alert
func (h *Handlers) ListAlertDeliveries(c *gin.Context) {
	attempts, err := h.repos.Delivery.ListByAlert(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.log.WithError(err).Error("Failed to list delivery attempts")
		utils.SendError(c, http.StatusInternalServerError, "Failed to list delivery attempts")
		return
	}

	utils.SendSuccess(c, attempts)
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
