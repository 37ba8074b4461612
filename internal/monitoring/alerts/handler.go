package alerts

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"carbon-scribe/blue-carbon-registry/internal/registry"
)

// Handler handles HTTP requests for sensor alerts
type Handler struct {
	engine *Engine
	logger *zap.Logger
}

// NewHandler creates a new alerts handler
func NewHandler(engine *Engine, logger *zap.Logger) *Handler {
	return &Handler{engine: engine, logger: logger}
}

// RegisterRoutes registers alert routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	alerts := router.Group("/alerts")
	{
		alerts.GET("", h.listAlerts)
		alerts.GET("/rules", h.listRules)
		alerts.POST("/:id/acknowledge", h.acknowledge)
		alerts.POST("/:id/resolve", h.resolve)
	}
}

// listAlerts handles GET /api/v1/alerts
func (h *Handler) listAlerts(c *gin.Context) {
	alerts := h.engine.Alerts(Filter{
		ProjectID: c.Query("project_id"),
		Status:    c.Query("status"),
		Severity:  c.Query("severity"),
	})
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "count": len(alerts)})
}

// listRules handles GET /api/v1/alerts/rules
func (h *Handler) listRules(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rules": h.engine.Rules()})
}

// acknowledge handles POST /api/v1/alerts/:id/acknowledge
func (h *Handler) acknowledge(c *gin.Context) {
	alert, err := h.engine.Acknowledge(c.Param("id"))
	if err != nil {
		registry.RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

// resolve handles POST /api/v1/alerts/:id/resolve
func (h *Handler) resolve(c *gin.Context) {
	alert, err := h.engine.Resolve(c.Param("id"))
	if err != nil {
		registry.RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}
