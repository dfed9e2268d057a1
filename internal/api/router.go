package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/frostdev-ops/rm-alert-engine/internal/api/handlers"
	"github.com/frostdev-ops/rm-alert-engine/internal/api/middleware"
	"github.com/frostdev-ops/rm-alert-engine/internal/config"
	"github.com/frostdev-ops/rm-alert-engine/internal/websocket"
	"github.com/frostdev-ops/rm-alert-engine/pkg/logger"
)

// NewRouter creates and configures the main HTTP router
func NewRouter(cfg *config.Config, deps handlers.Dependencies, log *logger.BatchLogger) *gin.Engine {
	// Set gin mode based on config
	switch cfg.Server.Mode {
	case "production", "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.RecoveryMiddleware(log.Logger))
	router.Use(middleware.LoggingMiddleware(log))
	router.Use(middleware.CORSMiddleware(cfg.Server.AllowedOrigins))
	if cfg.Prometheus.Enabled {
		router.Use(middleware.MetricsMiddleware())
	}

	h := handlers.NewHandlers(deps, log.Logger)

	// Public routes
	router.GET("/health", h.Health)
	router.GET("/health/ready", h.Ready)
	if cfg.Prometheus.Enabled {
		path := cfg.Prometheus.Path
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, gin.WrapH(promhttp.Handler()))
	}

	// WebSocket endpoint (no auth required for connection)
	if deps.Hub != nil {
		router.GET("/ws", websocket.HandleWebSocketGin(deps.Hub))
	}

	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(cfg.Auth))
	{
		api.GET("/status", h.GetStatus)
		api.GET("/thresholds", h.GetThresholds)

		alerts := api.Group("/alerts")
		{
			alerts.GET("", h.GetActiveAlerts)
			alerts.GET("/history", h.GetAlertHistory)
			alerts.GET("/:id", h.GetAlert)
			alerts.POST("/:id/acknowledge", h.AcknowledgeAlert)
			alerts.POST("/:id/dismiss", h.DismissAlert)
		}

		monitoring := api.Group("/monitoring")
		{
			monitoring.POST("/run", h.RunMonitoringCycle)
			monitoring.GET("/last", h.GetLastMonitoringCycle)
		}

		analysis := api.Group("/analysis")
		{
			analysis.POST("/run", h.RunAnalysisCycle)
			analysis.GET("/last", h.GetLastAnalysisCycle)
		}

		api.POST("/metrics/samples", h.RecordMetricSamples)
		api.GET("/websocket/stats", h.GetWebSocketStats)
	}

	return router
}
