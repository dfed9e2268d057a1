package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/frostdev-ops/rm-alert-engine/pkg/utils"
)

// GetWebSocketStats returns websocket hub statistics
func (h *Handlers) GetWebSocketStats(c *gin.Context) {
	if h.wsHub == nil {
		utils.SendError(c, http.StatusServiceUnavailable, "WebSocket hub is not running")
		return
	}
	utils.SendSuccess(c, h.wsHub.GetStats())
}
