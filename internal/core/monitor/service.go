package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/rm-alert-engine/internal/core/alerts"
	"github.com/frostdev-ops/rm-alert-engine/internal/core/clock"
	"github.com/frostdev-ops/rm-alert-engine/internal/core/insights"
	"github.com/frostdev-ops/rm-alert-engine/internal/core/metrics"
	"github.com/frostdev-ops/rm-alert-engine/internal/core/metricsource"
	"github.com/frostdev-ops/rm-alert-engine/internal/core/scheduler"
)

// ErrMonitoringInProgress is returned when a monitoring cycle is triggered
// while another one runs
var ErrMonitoringInProgress = errors.New("monitoring cycle already in progress")

// ErrAnalysisNotConfigured is returned by RunAnalysisCycle when no
// orchestrator was supplied
var ErrAnalysisNotConfigured = errors.New("insight analysis is not configured")

// Scheduled job names
const (
	JobMonitoring = "monitoring"
	JobAnalysis   = "analysis"
)

// ServiceConfig contains the collaborators and timings of the monitoring service
type ServiceConfig struct {
	MonitoringEnabled bool
	AnalysisEnabled   bool
	CheckInterval     time.Duration
	AnalysisInterval  time.Duration
	// MetricWindow is the range each metric read covers, ending now
	MetricWindow time.Duration

	Specs        []alerts.ThresholdSpec
	Manager      *alerts.Manager
	Orchestrator *insights.Orchestrator
	Source       metricsource.Source
	Scheduler    *scheduler.Scheduler
	// Repository is used to restore active alerts on start; optional
	Repository alerts.Repository
	Clock      clock.Clock
}

// Status is the externally visible engine status
type Status struct {
	MonitoringActive    bool                `json:"monitoring_active"`
	ActiveAlertCount    int                 `json:"active_alert_count"`
	AlertsByCategory    map[string]int      `json:"alerts_by_category"`
	AlertsBySeverity    map[string]int      `json:"alerts_by_severity"`
	PendingEscalations  int                 `json:"pending_escalations"`
	MonitoredMetrics    int                 `json:"monitored_metrics"`
	Producers           []string            `json:"producers"`
	LastMonitoringCycle *time.Time          `json:"last_monitoring_cycle,omitempty"`
	LastAnalysisCycle   *time.Time          `json:"last_analysis_cycle,omitempty"`
	Jobs                []scheduler.JobInfo `json:"jobs"`
}

// MetricReading is one metric evaluated in a monitoring cycle
type MetricReading struct {
	alerts.Outcome
	Fallback metricsource.Fallback `json:"fallback,omitempty"`
	Error    string                `json:"error,omitempty"`
}

// CycleResult is the outcome of one monitoring cycle
type CycleResult struct {
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Readings   []MetricReading `json:"readings"`
}

// Service runs the periodic monitoring and analysis cycles and exposes the
// operator entry points
type Service struct {
	cfg          ServiceConfig
	manager      *alerts.Manager
	orchestrator *insights.Orchestrator
	source       *metricsource.FallbackSource
	scheduler    *scheduler.Scheduler
	clock        clock.Clock
	logger       *logrus.Logger

	mu        sync.RWMutex
	running   bool
	jobCtx    context.Context
	jobCancel context.CancelFunc
	lastCycle *CycleResult

	cycleRunning atomic.Bool
}

// NewService creates a new monitoring service
func NewService(cfg ServiceConfig, logger *logrus.Logger) (*Service, error) {
	if cfg.Manager == nil {
		return nil, fmt.Errorf("alert manager is required")
	}
	if cfg.Source == nil {
		return nil, fmt.Errorf("metric source is required")
	}
	if cfg.Scheduler == nil {
		return nil, fmt.Errorf("scheduler is required")
	}
	for _, spec := range cfg.Specs {
		if err := spec.Validate(); err != nil {
			return nil, err
		}
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 5 * time.Minute
	}
	if cfg.AnalysisInterval <= 0 {
		cfg.AnalysisInterval = 15 * time.Minute
	}
	if cfg.MetricWindow <= 0 {
		cfg.MetricWindow = 24 * time.Hour
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	return &Service{
		cfg:          cfg,
		manager:      cfg.Manager,
		orchestrator: cfg.Orchestrator,
		source:       metricsource.NewFallbackSource(cfg.Source, logger),
		scheduler:    cfg.Scheduler,
		clock:        cfg.Clock,
		logger:       logger,
	}, nil
}

// Start restores persisted active alerts, registers the periodic cycles and
// starts the scheduler
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("monitoring service is already running")
	}

	s.logger.Info("Starting monitoring service")
	s.restore(ctx)

	s.jobCtx, s.jobCancel = context.WithCancel(context.Background())
	jobCtx := s.jobCtx

	if s.cfg.MonitoringEnabled {
		if err := s.scheduler.Every(JobMonitoring, s.cfg.CheckInterval, func() {
			if _, err := s.RunMonitoringCycle(jobCtx); err != nil && !errors.Is(err, ErrMonitoringInProgress) {
				s.logger.WithError(err).Warn("Scheduled monitoring cycle failed")
			}
		}); err != nil {
			s.jobCancel()
			return fmt.Errorf("failed to schedule monitoring cycle: %w", err)
		}
	}

	if s.cfg.AnalysisEnabled && s.orchestrator != nil {
		if err := s.scheduler.Every(JobAnalysis, s.cfg.AnalysisInterval, func() {
			if _, err := s.RunAnalysisCycle(jobCtx); err != nil && !errors.Is(err, insights.ErrCycleInProgress) {
				s.logger.WithError(err).Warn("Scheduled analysis cycle failed")
			}
		}); err != nil {
			s.jobCancel()
			return fmt.Errorf("failed to schedule analysis cycle: %w", err)
		}
	}

	if err := s.scheduler.Start(); err != nil {
		s.jobCancel()
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	s.running = true
	s.logger.WithFields(logrus.Fields{
		"check_interval":    s.cfg.CheckInterval.String(),
		"analysis_interval": s.cfg.AnalysisInterval.String(),
		"metrics":           len(s.cfg.Specs),
	}).Info("Monitoring service started successfully")
	return nil
}

func (s *Service) restore(ctx context.Context) {
	if s.cfg.Repository == nil {
		return
	}

	persisted, err := s.cfg.Repository.List(ctx, alerts.ListFilter{
		States: []alerts.State{alerts.StateRaised, alerts.StateAcknowledged, alerts.StateEscalated},
	})
	if err != nil {
		s.logger.WithError(err).Warn("Failed to load active alerts, starting with an empty registry")
		return
	}

	restored := s.manager.Restore(persisted)
	s.logger.WithField("alerts", restored).Info("Restored active alerts")
}

// Stop stops the periodic cycles and cancels every pending escalation
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.jobCancel
	s.mu.Unlock()

	// In-flight cycles take s.mu to record their result, so the scheduler
	// is drained without holding it
	s.logger.Info("Stopping monitoring service")
	if cancel != nil {
		cancel()
	}
	err := s.scheduler.Stop(ctx)
	s.manager.Shutdown()

	s.logger.Info("Monitoring service stopped")
	return err
}

// Running reports whether the periodic cycles are active
func (s *Service) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// RunMonitoringCycle reads every configured metric and applies the values
// to the alert registry. Metric reads happen before any registry change.
func (s *Service) RunMonitoringCycle(ctx context.Context) (*CycleResult, error) {
	if !s.cycleRunning.CompareAndSwap(false, true) {
		metrics.CyclesTotal.WithLabelValues("monitoring", "skipped").Inc()
		return nil, ErrMonitoringInProgress
	}
	defer s.cycleRunning.Store(false)

	start := time.Now()
	now := s.clock.Now()
	window := metricsource.Window(now, s.cfg.MetricWindow)
	result := &CycleResult{StartedAt: now}

	readings := make([]metricsource.Reading, len(s.cfg.Specs))
	for i, spec := range s.cfg.Specs {
		readings[i] = s.source.Read(ctx, spec, window)
	}

	if err := ctx.Err(); err != nil {
		metrics.CyclesTotal.WithLabelValues("monitoring", "cancelled").Inc()
		return nil, err
	}

	for i, spec := range s.cfg.Specs {
		outcome := s.manager.EvaluateMetric(ctx, spec, readings[i].Value)
		reading := MetricReading{Outcome: outcome, Fallback: readings[i].Fallback}
		if readings[i].Err != nil {
			reading.Error = readings[i].Err.Error()
		}
		result.Readings = append(result.Readings, reading)
	}
	result.FinishedAt = s.clock.Now()

	s.mu.Lock()
	s.lastCycle = result
	s.mu.Unlock()

	metrics.CyclesTotal.WithLabelValues("monitoring", "completed").Inc()
	metrics.CycleDuration.WithLabelValues("monitoring").Observe(time.Since(start).Seconds())

	s.logger.WithFields(logrus.Fields{
		"metrics":       len(result.Readings),
		"active_alerts": s.manager.ActiveCount(),
		"duration":      time.Since(start).String(),
	}).Info("Monitoring cycle completed")

	return result, nil
}

// RunAnalysisCycle runs one insight analysis cycle
func (s *Service) RunAnalysisCycle(ctx context.Context) (*insights.CycleResult, error) {
	if s.orchestrator == nil {
		return nil, ErrAnalysisNotConfigured
	}
	return s.orchestrator.RunAnalysisCycle(ctx)
}

// LastMonitoringCycle returns the most recent monitoring cycle result
func (s *Service) LastMonitoringCycle() *CycleResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastCycle
}

// LastAnalysisCycle returns the most recent analysis cycle result
func (s *Service) LastAnalysisCycle() *insights.CycleResult {
	if s.orchestrator == nil {
		return nil
	}
	return s.orchestrator.Last()
}

// Acknowledge marks an active alert as acknowledged. Acknowledging an
// already acknowledged alert succeeds without a new transition.
func (s *Service) Acknowledge(ctx context.Context, alertID, actorID string) (*alerts.Alert, error) {
	alert, _ := s.manager.Acknowledge(ctx, alertID, actorID)
	if alert == nil {
		return nil, alerts.ErrAlertNotFound
	}
	return alert, nil
}

// Dismiss resolves an active alert on operator request
func (s *Service) Dismiss(ctx context.Context, alertID, actorID string) (*alerts.Alert, error) {
	alert, ok := s.manager.Dismiss(ctx, alertID, actorID)
	if !ok {
		return nil, alerts.ErrAlertNotFound
	}
	return alert, nil
}

// GetActiveAlerts returns the active alerts, most severe first
func (s *Service) GetActiveAlerts() []*alerts.Alert {
	return s.manager.ActiveAlerts()
}

// GetAlert returns an active alert
func (s *Service) GetAlert(id string) (*alerts.Alert, bool) {
	return s.manager.Get(id)
}

// Thresholds returns the configured threshold specs
func (s *Service) Thresholds() []alerts.ThresholdSpec {
	return append([]alerts.ThresholdSpec(nil), s.cfg.Specs...)
}

// GetStatus returns the current engine status
func (s *Service) GetStatus() Status {
	bySeverity := make(map[string]int)
	for severity, count := range s.manager.CountsBySeverity() {
		bySeverity[string(severity)] = count
	}

	status := Status{
		MonitoringActive:   s.Running(),
		ActiveAlertCount:   s.manager.ActiveCount(),
		AlertsByCategory:   s.manager.CountsByCategory(),
		AlertsBySeverity:   bySeverity,
		PendingEscalations: s.manager.PendingEscalations(),
		MonitoredMetrics:   len(s.cfg.Specs),
		Jobs:               s.scheduler.Jobs(),
	}
	if s.orchestrator != nil {
		status.Producers = s.orchestrator.Producers()
		if last := s.orchestrator.Last(); last != nil {
			finished := last.FinishedAt
			status.LastAnalysisCycle = &finished
		}
	}
	if last := s.LastMonitoringCycle(); last != nil {
		finished := last.FinishedAt
		status.LastMonitoringCycle = &finished
	}
	return status
}
