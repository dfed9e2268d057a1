package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/rm-alert-engine/internal/api/middleware"
	"github.com/frostdev-ops/rm-alert-engine/internal/core/alerts"
	apperrors "github.com/frostdev-ops/rm-alert-engine/pkg/errors"
	"github.com/frostdev-ops/rm-alert-engine/pkg/utils"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// GetActiveAlerts lists active alerts, optionally filtered by category and
// severity
func (h *Handlers) GetActiveAlerts(c *gin.Context) {
	category := c.Query("category")
	severity := alerts.Severity(c.Query("severity"))
	if severity != "" && !severity.Valid() {
		utils.SendError(c, http.StatusBadRequest, "Invalid severity: "+string(severity))
		return
	}

	active := h.service.GetActiveAlerts()
	filtered := make([]*alerts.Alert, 0, len(active))
	for _, alert := range active {
		if category != "" && alert.Category != category {
			continue
		}
		if severity != "" && alert.Severity != severity {
			continue
		}
		filtered = append(filtered, alert)
	}

	utils.SendSuccessWithMeta(c, filtered, gin.H{
		"count": len(filtered),
		"total": len(active),
	})
}

// GetAlertHistory lists persisted alerts, resolved ones included
func (h *Handlers) GetAlertHistory(c *gin.Context) {
	if h.store == nil {
		h.sendError(c, errNoStore)
		return
	}

	filter := alerts.ListFilter{
		Category: c.Query("category"),
		Limit:    defaultHistoryLimit,
	}

	if raw := c.Query("state"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			state := alerts.State(strings.TrimSpace(part))
			if !state.Active() && state != alerts.StateResolved {
				utils.SendError(c, http.StatusBadRequest, "Invalid state: "+string(state))
				return
			}
			filter.States = append(filter.States, state)
		}
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			utils.SendError(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if limit > maxHistoryLimit {
			limit = maxHistoryLimit
		}
		filter.Limit = limit
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	history, err := h.store.List(ctx, filter)
	if err != nil {
		h.log.WithError(err).Error("Failed to list alert history")
		h.sendError(c, err)
		return
	}
	if history == nil {
		history = []*alerts.Alert{}
	}

	utils.SendSuccessWithMeta(c, history, gin.H{
		"count": len(history),
		"limit": filter.Limit,
	})
}

// GetAlert returns an alert from the active registry, falling back to the
// store for resolved alerts
func (h *Handlers) GetAlert(c *gin.Context) {
	id := c.Param("id")
	if alert, ok := h.service.GetAlert(id); ok {
		utils.SendSuccess(c, alert)
		return
	}

	if h.store == nil {
		h.sendError(c, alerts.ErrAlertNotFound)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	alert, err := h.store.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, alerts.ErrAlertNotFound) {
			h.log.WithError(err).WithField("alert_id", id).Error("Failed to load alert")
		}
		h.sendError(c, err)
		return
	}
	utils.SendSuccess(c, alert)
}

// AcknowledgeAlert acknowledges an active alert on behalf of the caller
func (h *Handlers) AcknowledgeAlert(c *gin.Context) {
	id := c.Param("id")
	actor := middleware.Actor(c)

	alert, err := h.service.Acknowledge(c.Request.Context(), id, actor)
	if err != nil {
		h.sendError(c, err)
		return
	}

	h.log.WithFields(logrus.Fields{
		"alert_id": id,
		"actor_id": actor,
	}).Info("Alert acknowledged")
	utils.SendSuccess(c, alert)
}

// DismissAlert resolves an active alert on behalf of the caller
func (h *Handlers) DismissAlert(c *gin.Context) {
	id := c.Param("id")
	actor := middleware.Actor(c)

	alert, err := h.service.Dismiss(c.Request.Context(), id, actor)
	if err != nil {
		h.sendError(c, err)
		return
	}

	h.log.WithFields(logrus.Fields{
		"alert_id": id,
		"actor_id": actor,
	}).Info("Alert dismissed")
	utils.SendSuccess(c, alert)
}

func (h *Handlers) sendError(c *gin.Context, err error) {
	appErr := apperrors.FromError(err, errorMappings...)
	if appErr.Code >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	utils.SendAppError(c, appErr)
}
