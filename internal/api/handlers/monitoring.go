package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/frostdev-ops/rm-alert-engine/pkg/utils"
)

// GetStatus returns the engine status
func (h *Handlers) GetStatus(c *gin.Context) {
	utils.SendSuccess(c, h.service.GetStatus())
}

// GetThresholds returns the configured metric thresholds
func (h *Handlers) GetThresholds(c *gin.Context) {
	utils.SendSuccess(c, h.service.Thresholds())
}

// RunMonitoringCycle triggers a monitoring cycle and waits for it
func (h *Handlers) RunMonitoringCycle(c *gin.Context) {
	result, err := h.service.RunMonitoringCycle(c.Request.Context())
	if err != nil {
		h.sendError(c, err)
		return
	}
	utils.SendSuccess(c, result)
}

// GetLastMonitoringCycle returns the latest monitoring cycle result
func (h *Handlers) GetLastMonitoringCycle(c *gin.Context) {
	result := h.service.LastMonitoringCycle()
	if result == nil {
		utils.SendError(c, http.StatusNotFound, "No monitoring cycle has run yet")
		return
	}
	utils.SendSuccess(c, result)
}

// RunAnalysisCycle triggers an insight analysis cycle and waits for it
func (h *Handlers) RunAnalysisCycle(c *gin.Context) {
	result, err := h.service.RunAnalysisCycle(c.Request.Context())
	if err != nil {
		h.sendError(c, err)
		return
	}
	utils.SendSuccess(c, result)
}

// GetLastAnalysisCycle returns the latest analysis cycle result
func (h *Handlers) GetLastAnalysisCycle(c *gin.Context) {
	result := h.service.LastAnalysisCycle()
	if result == nil {
		utils.SendError(c, http.StatusNotFound, "No analysis cycle has run yet")
		return
	}
	utils.SendSuccess(c, result)
}
