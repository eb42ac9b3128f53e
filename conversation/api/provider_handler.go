package api

import (
	"net/http"

	apperrors "converso/backend/pkg/errors"
	"converso/backend/pkg/logger"
	"converso/backend/provider"

	"github.com/gin-gonic/gin"
)

// ProviderHandler exposes the provider registry over HTTP
type ProviderHandler struct {
	registry *provider.Registry
	logger   *logger.Logger
}

// NewProviderHandler creates a new provider handler
func NewProviderHandler(registry *provider.Registry, logger *logger.Logger) *ProviderHandler {
	return &ProviderHandler{registry: registry, logger: logger}
}

// List handles GET /providers
func (h *ProviderHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"providers": h.registry.ListNames(),
	})
}

// Models handles GET /providers/:name/models
func (h *ProviderHandler) Models(c *gin.Context) {
	name := c.Param("name")

	models, err := h.registry.GetModels(c.Request.Context(), name)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"models": models})
}

type validateSettingsRequest struct {
	Settings map[string]float64 `json:"settings" binding:"required"`
}

// ValidateSettings handles POST /providers/:name/settings/validate
func (h *ProviderHandler) ValidateSettings(c *gin.Context) {
	name := c.Param("name")

	var req validateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewValidationError(err.Error()))
		return
	}

	result, err := h.registry.ValidateSettings(name, req.Settings)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Health handles GET /providers/:name/health
func (h *ProviderHandler) Health(c *gin.Context) {
	name := c.Param("name")

	healthy := h.registry.IsHealthy(c.Request.Context(), name)

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"provider": name,
		"healthy":  healthy,
	})
}
