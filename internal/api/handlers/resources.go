package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sentinel-ops/sentinel-backend-go/internal/database/models"
	"github.com/sentinel-ops/sentinel-backend-go/internal/database/repositories"
	"github.com/sentinel-ops/sentinel-backend-go/pkg/utils"
)

// ListResources returns the monitored resource inventory
func (h *Handlers) ListResources(c *gin.Context) {
	filter := repositories.ResourceFilter{
		Provider:      c.Query("provider"),
		Type:          c.Query("type"),
		OnlyMonitored: c.Query("monitored") == "true",
	}

	resources, err := h.repos.Resource.List(c.Request.Context(), filter)
	if err != nil {
		h.log.WithError(err).Error("Failed to list resources")
		utils.SendError(c, http.StatusInternalServerError, "Failed to list resources")
		return
	}

	utils.SendSuccess(c, resources)
}

// GetResource returns one resource by its external resource identifier
func (h *Handlers) GetResource(c *gin.Context) {
	resource, err := h.repos.Resource.GetByResourceID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.log.WithError(err).Error("Failed to get resource")
		utils.SendError(c, http.StatusInternalServerError, "Failed to get resource")
		return
	}
	if resource == nil {
		utils.SendError(c, http.StatusNotFound, "Resource not found")
		return
	}

	utils.SendSuccess(c, resource)
}

type resourceRequest struct {
	ResourceID        string            `json:"resource_id" binding:"required"`
	Name              string            `json:"name" binding:"required"`
	Type              string            `json:"type" binding:"required"`
	Provider          string            `json:"provider" binding:"required"`
	Tags              map[string]string `json:"tags"`
	MonitoringEnabled *bool             `json:"monitoring_enabled"`
}

// CreateResource registers a resource manually, outside of discovery
func (h *Handlers) CreateResource(c *gin.Context) {
	var req resourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, err.Error())
		return
	}

	existing, err := h.repos.Resource.GetByResourceID(c.Request.Context(), req.ResourceID)
	if err != nil {
		utils.SendError(c, http.StatusInternalServerError, "Failed to check resource")
		return
	}
	if existing != nil {
		utils.SendError(c, http.StatusConflict, "Resource already exists")
		return
	}

	monitoring := true
	if req.MonitoringEnabled != nil {
		monitoring = *req.MonitoringEnabled
	}

	resource := &models.Resource{
		ResourceID:        req.ResourceID,
		Name:              req.Name,
		Type:              req.Type,
		Provider:          req.Provider,
		Tags:              req.Tags,
		Onboarded:         true,
		MonitoringEnabled: monitoring,
	}
	if err := h.repos.Resource.Create(c.Request.Context(), resource); err != nil {
		h.log.WithError(err).Error("Failed to create resource")
		utils.SendError(c, http.StatusInternalServerError, "Failed to create resource")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "data": resource})
}

type resourceUpdateRequest struct {
	Name              string            `json:"name"`
	Type              string            `json:"type"`
	Provider          string            `json:"provider"`
	Tags              map[string]string `json:"tags"`
	MonitoringEnabled *bool             `json:"monitoring_enabled"`
}

// UpdateResource mutates resource metadata and the monitoring toggle
func (h *Handlers) UpdateResource(c *gin.Context) {
	resource, err := h.repos.Resource.GetByResourceID(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.SendError(c, http.StatusInternalServerError, "Failed to get resource")
		return
	}
	if resource == nil {
		utils.SendError(c, http.StatusNotFound, "Resource not found")
		return
	}

	var req resourceUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, err.Error())
		return
	}

	if req.Name != "" {
		resource.Name = req.Name
	}
	if req.Type != "" {
		resource.Type = req.Type
	}
	if req.Provider != "" {
		resource.Provider = req.Provider
	}
	if req.Tags != nil {
		resource.Tags = req.Tags
	}
	if req.MonitoringEnabled != nil {
		resource.MonitoringEnabled = *req.MonitoringEnabled
	}

	if err := h.repos.Resource.Update(c.Request.Context(), resource); err != nil {
		h.log.WithError(err).Error("Failed to update resource")
		utils.SendError(c, http.StatusInternalServerError, "Failed to update resource")
		return
	}

	utils.SendSuccess(c, resource)
}

// DeleteResource removes a resource from the inventory
func (h *Handlers) DeleteResource(c *gin.Context) {
	if err := h.repos.Resource.Delete(c.Request.Context(), c.Param("id")); err != nil {
		utils.SendError(c, http.StatusNotFound, "Resource not found")
		return
	}

	utils.SendSuccess(c, gin.H{"deleted": c.Param("id")})
}
