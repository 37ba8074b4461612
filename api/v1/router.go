// Package v1 assembles the registry HTTP API.
package v1

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"carbon-scribe/blue-carbon-registry/internal/analytics"
	"carbon-scribe/blue-carbon-registry/internal/backup"
	"carbon-scribe/blue-carbon-registry/internal/monitoring/alerts"
	"carbon-scribe/blue-carbon-registry/internal/monitoring/metrics"
	"carbon-scribe/blue-carbon-registry/internal/notifications"
	"carbon-scribe/blue-carbon-registry/internal/notifications/websocket"
	"carbon-scribe/blue-carbon-registry/internal/registry"
	"carbon-scribe/blue-carbon-registry/internal/reports"
)

// API holds the handler dependencies. Optional components may be nil.
type API struct {
	Registry    registry.Service
	Analytics   *analytics.Aggregator
	Reports     reports.Service
	Alerts      *alerts.Engine
	WebSocket   *websocket.Manager
	Dispatcher  *notifications.Dispatcher
	Metrics     *metrics.Metrics
	MetricsPath string
	Backup      *backup.Scheduler
	Logger      *zap.Logger
}

// NewRouter builds the gin engine with every route mounted
func NewRouter(api API) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(api.Logger), cors())
	if api.Metrics != nil {
		router.Use(api.Metrics.Middleware())
	}

	v1 := router.Group("/api/v1")
	{
		registry.NewHandler(api.Registry, api.Logger).RegisterRoutes(v1)
		analytics.NewHandler(api.Analytics, api.Logger).RegisterRoutes(v1)
		if api.Reports != nil {
			reports.NewHandler(api.Reports, api.Logger).RegisterRoutes(v1)
		}
		if api.Alerts != nil {
			alerts.NewHandler(api.Alerts, api.Logger).RegisterRoutes(v1)
		}
	}

	if api.WebSocket != nil {
		router.GET("/ws", api.WebSocket.Handle)
	}
	if api.Metrics != nil {
		path := api.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, gin.WrapH(api.Metrics.Handler()))
	}
	router.GET("/health", health(api))

	return router
}

// health handles GET /health
func health(api API) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC(),
		}
		if api.WebSocket != nil {
			body["websocket_connections"] = api.WebSocket.GetConnectionCount()
		}
		if api.Dispatcher != nil {
			body["event_delivery"] = api.Dispatcher.DeliveryStatus()
		}
		if api.Backup != nil {
			body["backup"] = api.Backup.Status()
		}
		c.JSON(http.StatusOK, body)
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("Request failed", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn("Request rejected", fields...)
		default:
			logger.Debug("Request served", fields...)
		}
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PATCH, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
