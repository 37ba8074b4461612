package analytics

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"carbon-scribe/blue-carbon-registry/internal/registry"
)

// Handler handles HTTP requests for analytics
type Handler struct {
	aggregator *Aggregator
	logger     *zap.Logger
}

// NewHandler creates a new analytics handler
func NewHandler(aggregator *Aggregator, logger *zap.Logger) *Handler {
	return &Handler{aggregator: aggregator, logger: logger}
}

// RegisterRoutes registers analytics routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	analytics := router.Group("/analytics")
	{
		analytics.GET("/projects", h.getProjectStats)
		analytics.GET("/market", h.getMarketStats)
		analytics.GET("/projects/:id/sensors", h.getSensorSummary)
	}
}

// getProjectStats handles GET /api/v1/analytics/projects
func (h *Handler) getProjectStats(c *gin.Context) {
	stats, err := h.aggregator.ProjectStats(c.Request.Context())
	if err != nil {
		registry.RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// getMarketStats handles GET /api/v1/analytics/market
func (h *Handler) getMarketStats(c *gin.Context) {
	stats, err := h.aggregator.MarketStats(c.Request.Context())
	if err != nil {
		registry.RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// getSensorSummary handles GET /api/v1/analytics/projects/:id/sensors
func (h *Handler) getSensorSummary(c *gin.Context) {
	summary, err := h.aggregator.SensorSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		registry.RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
