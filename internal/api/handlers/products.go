package handlers

import (
	"database/sql"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sentinel-ops/sentinel-backend-go/internal/database/models"
	"github.com/sentinel-ops/sentinel-backend-go/pkg/utils"
)

type productRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// ListProducts returns the product catalog
func (h *Handlers) ListProducts(c *gin.Context) {
	products, err := h.repos.Product.List(c.Request.Context())
	if err != nil {
		h.log.WithError(err).Error("Failed to list products")
		utils.SendError(c, http.StatusInternalServerError, "Failed to list products")
		return
	}

	utils.SendSuccess(c, products)
}

// GetProduct returns one product by ID
func (h *Handlers) GetProduct(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		utils.SendError(c, http.StatusBadRequest, "Invalid product ID")
		return
	}

	product, err := h.repos.Product.GetByID(c.Request.Context(), id)
	if err != nil {
		utils.SendError(c, http.StatusNotFound, "Product not found")
		return
	}

	utils.SendSuccess(c, product)
}

// CreateProduct adds a product to the catalog
func (h *Handlers) CreateProduct(c *gin.Context) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, err.Error())
		return
	}

	product := &models.Product{
		Name:        req.Name,
		Description: sql.NullString{String: req.Description, Valid: req.Description != ""},
	}
	if err := h.repos.Product.Create(c.Request.Context(), product); err != nil {
		h.log.WithError(err).Error("Failed to create product")
		utils.SendError(c, http.StatusInternalServerError, "Failed to create product")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "data": product})
}

// UpdateProduct mutates a product
func (h *Handlers) UpdateProduct(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		utils.SendError(c, http.StatusBadRequest, "Invalid product ID")
		return
	}

	product, err := h.repos.Product.GetByID(c.Request.Context(), id)
	if err != nil {
		utils.SendError(c, http.StatusNotFound, "Product not found")
		return
	}

	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, err.Error())
		return
	}

	product.Name = req.Name
	product.Description = sql.NullString{String: req.Description, Valid: req.Description != ""}

	if err := h.repos.Product.Update(c.Request.Context(), product); err != nil {
		h.log.WithError(err).Error("Failed to update product")
		utils.SendError(c, http.StatusInternalServerError, "Failed to update product")
		return
	}

	utils.SendSuccess(c, product)
}

// DeleteProduct removes a product from the catalog
func (h *Handlers) DeleteProduct(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		utils.SendError(c, http.StatusBadRequest, "Invalid product ID")
		return
	}

	if err := h.repos.Product.Delete(c.Request.Context(), id); err != nil {
		utils.SendError(c, http.StatusNotFound, "Product not found")
		return
	}

	utils.SendSuccess(c, gin.H{"deleted": id})
}
