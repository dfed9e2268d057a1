package handlers

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/rm-alert-engine/internal/core/alerts"
	"github.com/frostdev-ops/rm-alert-engine/internal/core/insights"
	"github.com/frostdev-ops/rm-alert-engine/internal/core/metrics"
	"github.com/frostdev-ops/rm-alert-engine/internal/core/monitor"
	"github.com/frostdev-ops/rm-alert-engine/internal/database/sqlite"
	"github.com/frostdev-ops/rm-alert-engine/internal/websocket"
	apperrors "github.com/frostdev-ops/rm-alert-engine/pkg/errors"
)

// AlertStore reads persisted alerts, including resolved ones
type AlertStore interface {
	GetByID(ctx context.Context, id string) (*alerts.Alert, error)
	List(ctx context.Context, filter alerts.ListFilter) ([]*alerts.Alert, error)
}

// SampleRecorder stores ingested metric samples
type SampleRecorder interface {
	Record(ctx context.Context, samples ...sqlite.MetricSample) error
}

// Dependencies are the services the handlers delegate to. Store, Samples
// and Hub are optional.
type Dependencies struct {
	Service *monitor.Service
	Store   AlertStore
	Samples SampleRecorder
	Hub     *websocket.Hub
	Health  *metrics.HealthChecker
}

// Handlers holds all HTTP handlers and their dependencies
type Handlers struct {
	service *monitor.Service
	store   AlertStore
	samples SampleRecorder
	wsHub   *websocket.Hub
	health  *metrics.HealthChecker
	log     *logrus.Logger
}

// NewHandlers creates a new handlers instance
func NewHandlers(deps Dependencies, logger *logrus.Logger) *Handlers {
	health := deps.Health
	if health == nil {
		health = metrics.NewHealthChecker(0)
	}
	return &Handlers{
		service: deps.Service,
		store:   deps.Store,
		samples: deps.Samples,
		wsHub:   deps.Hub,
		health:  health,
		log:     logger,
	}
}

var (
	errNoStore   = errors.New("alert store is not configured")
	errNoSamples = errors.New("metric sample store is not configured")
)

// errorMappings translates domain errors into HTTP errors
var errorMappings = []apperrors.Mapping{
	{Target: alerts.ErrAlertNotFound, As: apperrors.New(404, "Alert not found")},
	{Target: monitor.ErrMonitoringInProgress, As: apperrors.New(409, "Monitoring cycle already in progress")},
	{Target: insights.ErrCycleInProgress, As: apperrors.New(409, "Analysis cycle already in progress")},
	{Target: monitor.ErrAnalysisNotConfigured, As: apperrors.New(404, "Analysis is not configured")},
	{Target: errNoStore, As: apperrors.ErrUnavailable},
	{Target: errNoSamples, As: apperrors.ErrUnavailable},
	{Target: context.DeadlineExceeded, As: apperrors.New(504, "Request timed out")},
}
