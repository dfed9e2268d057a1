package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/frostdev-ops/rm-alert-engine/internal/database/sqlite"
	"github.com/frostdev-ops/rm-alert-engine/pkg/utils"
)

const maxSamplesPerRequest = 1000

// RecordSamplesRequest is the body of POST /metrics/samples
type RecordSamplesRequest struct {
	Samples []sqlite.MetricSample `json:"samples" binding:"required,min=1,dive"`
}

// RecordMetricSamples ingests metric observations for the monitoring cycle
func (h *Handlers) RecordMetricSamples(c *gin.Context) {
	if h.samples == nil {
		h.sendError(c, errNoSamples)
		return
	}

	var req RecordSamplesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Samples) > maxSamplesPerRequest {
		utils.SendError(c, http.StatusRequestEntityTooLarge, "Too many samples in one request")
		return
	}

	now := time.Now().UTC()
	for i := range req.Samples {
		req.Samples[i].Metric = strings.TrimSpace(req.Samples[i].Metric)
		if req.Samples[i].Metric == "" {
			utils.SendError(c, http.StatusBadRequest, "Sample metric name is required")
			return
		}
		if req.Samples[i].RecordedAt.IsZero() {
			req.Samples[i].RecordedAt = now
		}
		if req.Samples[i].Source == "" {
			req.Samples[i].Source = "api"
		}
	}

	if err := h.samples.Record(c.Request.Context(), req.Samples...); err != nil {
		h.log.WithError(err).Error("Failed to record metric samples")
		h.sendError(c, err)
		return
	}

	utils.SendStatus(c, http.StatusCreated, gin.H{"recorded": len(req.Samples)})
}
