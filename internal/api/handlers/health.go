package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/frostdev-ops/rm-alert-engine/internal/core/metrics"
	"github.com/frostdev-ops/rm-alert-engine/pkg/version"
)

// Health reports liveness
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    metrics.StatusHealthy,
		"version":   version.GetVersion(),
		"timestamp": time.Now().UTC(),
		"monitoring": gin.H{
			"active":        h.service.Running(),
			"active_alerts": len(h.service.GetActiveAlerts()),
		},
	})
}

// Ready runs the registered health checks. Degraded components still
// report ready.
func (h *Handlers) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	report := h.health.Check(ctx)
	status := http.StatusOK
	if report.Status == metrics.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}
