package alerts

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/rm-alert-engine/internal/core/clock"
	"github.com/frostdev-ops/rm-alert-engine/internal/core/metrics"
	"github.com/frostdev-ops/rm-alert-engine/internal/core/scheduler"
)

// Action describes what an evaluation did to the registry
type Action string

const (
	ActionNone       Action = "none"
	ActionRaised     Action = "raised"
	ActionUpdated    Action = "updated"
	ActionSuppressed Action = "suppressed"
	ActionResolved   Action = "resolved"
)

// Outcome is the result of evaluating one metric
type Outcome struct {
	Metric string  `json:"metric"`
	Value  float64 `json:"value"`
	Status Status  `json:"status"`
	Action Action  `json:"action"`
	Alert  *Alert  `json:"alert,omitempty"`
}

// ManagerConfig contains lifecycle timing configuration
type ManagerConfig struct {
	CooldownWindow    time.Duration
	EscalationEnabled bool
	EscalationDelay   time.Duration
}

// DefaultManagerConfig returns the default lifecycle timings
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		CooldownWindow:    60 * time.Minute,
		EscalationEnabled: true,
		EscalationDelay:   30 * time.Minute,
	}
}

// Deferrer runs cancellable deferred work
type Deferrer interface {
	Schedule(delay time.Duration, fn func()) scheduler.Handle
	Cancel(h scheduler.Handle) bool
}

// ManagerOption is a functional option for configuring the manager
type ManagerOption func(*Manager)

// WithClock sets the time source
func WithClock(c clock.Clock) ManagerOption {
	return func(m *Manager) { m.clock = c }
}

// WithRepository sets the durable store
func WithRepository(r Repository) ManagerOption {
	return func(m *Manager) { m.repo = r }
}

// WithPublisher sets the event publisher
func WithPublisher(p Publisher) ManagerOption {
	return func(m *Manager) { m.publisher = p }
}

// Manager owns the active alert registry and the cooldown map. All lifecycle
// transitions happen under a single mutex; persistence and publication happen
// after it is released.
type Manager struct {
	cfg       ManagerConfig
	clock     clock.Clock
	deferrer  Deferrer
	repo      Repository
	publisher Publisher
	logger    *logrus.Logger

	mu          sync.Mutex
	active      map[string]*Alert           // key -> alert
	byID        map[string]string           // id -> key
	cooldowns   map[string]time.Time        // key -> lastFiredAt
	escalations map[string]scheduler.Handle // id -> pending escalation
	sequencers  map[string]*sequencer       // id -> commit order
}

type effectKind int

const (
	effectCreate effectKind = iota
	effectUpdate
)

type effect struct {
	kind       effectKind
	transition string
	alert      *Alert
	at         time.Time

	seq    *sequencer
	ticket uint64
}

// effectLocked records a transition of alert and takes its place in the
// alert's commit order
func (m *Manager) effectLocked(kind effectKind, transition string, alert *Alert, at time.Time) effect {
	seq, ok := m.sequencers[alert.ID]
	if !ok {
		seq = newSequencer()
		m.sequencers[alert.ID] = seq
	}
	return effect{
		kind:       kind,
		transition: transition,
		alert:      alert,
		at:         at,
		seq:        seq,
		ticket:     seq.issue(),
	}
}

// releaseSequencer drops the commit order of an alert that left the
// registry once its last commit is done
func (m *Manager) releaseSequencer(id string, seq *sequencer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, active := m.byID[id]; active {
		return
	}
	if m.sequencers[id] == seq && seq.idle() {
		delete(m.sequencers, id)
	}
}

// sequencer hands out tickets under the registry lock and lets commits of
// one alert run strictly in ticket order
type sequencer struct {
	mu     sync.Mutex
	cond   *sync.Cond
	issued uint64
	next   uint64
}

func newSequencer() *sequencer {
	s := &sequencer{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *sequencer) issue() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.issued
	s.issued++
	return t
}

func (s *sequencer) wait(ticket uint64) {
	s.mu.Lock()
	for s.next != ticket {
		s.cond.Wait()
	}
	s.mu.Unlock()
}

func (s *sequencer) done() {
	s.mu.Lock()
	s.next++
	s.mu.Unlock()
	s.cond.Broadcast()
}

func (s *sequencer) idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next == s.issued
}

// NewManager creates a new alert manager
func NewManager(cfg ManagerConfig, deferrer Deferrer, logger *logrus.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:         cfg,
		clock:       clock.New(),
		deferrer:    deferrer,
		logger:      logger,
		active:      make(map[string]*Alert),
		byID:        make(map[string]string),
		cooldowns:   make(map[string]time.Time),
		escalations: make(map[string]scheduler.Handle),
		sequencers:  make(map[string]*sequencer),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// EvaluateMetric applies one metric reading to the registry: it raises,
// updates, suppresses or resolves the metric's alert
func (m *Manager) EvaluateMetric(ctx context.Context, spec ThresholdSpec, value float64) Outcome {
	status := Evaluate(value, spec)
	key := MetricKey(spec.Metric)
	outcome := Outcome{Metric: spec.Metric, Value: value, Status: status, Action: ActionNone}

	m.mu.Lock()
	now := m.clock.Now()
	existing := m.active[key]

	if status == StatusHealthy {
		if existing == nil {
			m.mu.Unlock()
			return outcome
		}
		m.resolveLocked(existing, now, ResolutionRecovered, "")
		outcome.Action = ActionResolved
		outcome.Alert = existing.Clone()
		fx := m.effectLocked(effectUpdate, TransitionResolved, outcome.Alert, now)
		m.mu.Unlock()

		m.commit(ctx, fx)
		return outcome
	}

	if last, ok := m.cooldowns[key]; ok && now.Sub(last) < m.cfg.CooldownWindow {
		outcome.Action = ActionSuppressed
		outcome.Alert = existing.Clone()
		m.mu.Unlock()

		metrics.AlertsSuppressedTotal.WithLabelValues(spec.Metric).Inc()
		m.logger.WithFields(logrus.Fields{
			"metric":     spec.Metric,
			"value":      value,
			"status":     status,
			"last_fired": last,
		}).Debug("Threshold breach suppressed by cooldown")
		return outcome
	}

	severity := status.Severity()
	threshold := spec.ThresholdFor(severity)
	title, description, recommendation := describe(spec, status, value)

	var fx effect
	if existing != nil {
		existing.Severity = severity
		existing.CurrentValue = &value
		existing.Threshold = &threshold
		existing.Title = title
		existing.Description = description
		existing.Recommendation = recommendation
		existing.UpdatedAt = now
		existing.LastFiredAt = now
		m.syncEscalationLocked(existing)
		outcome.Action = ActionUpdated
		outcome.Alert = existing.Clone()
		fx = m.effectLocked(effectUpdate, TransitionUpdated, outcome.Alert, now)
	} else {
		category := spec.Category
		if category == "" {
			category = CategoryPerformance
		}
		alert := &Alert{
			ID:             uuid.New().String(),
			Key:            key,
			MetricName:     spec.Metric,
			Category:       category,
			Severity:       severity,
			State:          StateRaised,
			Title:          title,
			Description:    description,
			Recommendation: recommendation,
			CurrentValue:   &value,
			Threshold:      &threshold,
			CreatedAt:      now,
			UpdatedAt:      now,
			LastFiredAt:    now,
		}
		m.addLocked(alert)
		m.syncEscalationLocked(alert)
		outcome.Action = ActionRaised
		outcome.Alert = alert.Clone()
		fx = m.effectLocked(effectCreate, TransitionRaised, outcome.Alert, now)
	}
	m.cooldowns[key] = now
	m.mu.Unlock()

	m.commit(ctx, fx)
	return outcome
}

// CreateFromInsight turns an accepted insight into an active alert. An
// active alert with the same key is refreshed instead of duplicated.
func (m *Manager) CreateFromInsight(ctx context.Context, in Insight) *Alert {
	key := InsightKey(in.ProducerID, in.Title)
	severity := in.Severity
	if !severity.Valid() {
		severity = SeverityInfo
	}
	category := in.Category
	if category == "" {
		category = CategoryInsight
	}
	confidence := in.ConfidenceScore

	m.mu.Lock()
	now := m.clock.Now()

	var fx effect
	if existing := m.active[key]; existing != nil {
		existing.Severity = severity
		existing.Description = in.Description
		existing.Recommendation = in.Recommendation
		existing.Confidence = &confidence
		existing.UpdatedAt = now
		existing.LastFiredAt = now
		m.syncEscalationLocked(existing)
		fx = m.effectLocked(effectUpdate, TransitionUpdated, existing.Clone(), now)
	} else {
		alert := &Alert{
			ID:             uuid.New().String(),
			Key:            key,
			Category:       category,
			Severity:       severity,
			State:          StateRaised,
			Title:          in.Title,
			Description:    in.Description,
			Recommendation: in.Recommendation,
			ProducerID:     in.ProducerID,
			RouteID:        in.RouteID,
			Confidence:     &confidence,
			CreatedAt:      now,
			UpdatedAt:      now,
			LastFiredAt:    now,
		}
		m.addLocked(alert)
		m.syncEscalationLocked(alert)
		fx = m.effectLocked(effectCreate, TransitionRaised, alert.Clone(), now)
	}
	m.cooldowns[key] = now
	m.mu.Unlock()

	m.commit(ctx, fx)
	return fx.alert
}

// Acknowledge marks an active alert as acknowledged by actor. It is a no-op
// for unknown, resolved or already acknowledged alerts. The returned bool
// reports whether a transition happened; the alert is nil if id is not active.
func (m *Manager) Acknowledge(ctx context.Context, id, actor string) (*Alert, bool) {
	m.mu.Lock()
	alert := m.lookupLocked(id)
	if alert == nil {
		m.mu.Unlock()
		return nil, false
	}
	if alert.State == StateAcknowledged {
		snapshot := alert.Clone()
		m.mu.Unlock()
		return snapshot, false
	}

	now := m.clock.Now()
	alert.State = StateAcknowledged
	alert.AcknowledgedAt = &now
	alert.AcknowledgedBy = actor
	alert.UpdatedAt = now
	m.cancelEscalationLocked(id)
	snapshot := alert.Clone()
	fx := m.effectLocked(effectUpdate, TransitionAcknowledged, snapshot, now)
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"alert_id": id,
		"actor":    actor,
	}).Info("Alert acknowledged")

	m.commit(ctx, fx)
	return snapshot, true
}

// Dismiss resolves an active alert on explicit request. The cooldown entry
// is kept, so a still-breaching metric does not re-raise immediately.
func (m *Manager) Dismiss(ctx context.Context, id, actor string) (*Alert, bool) {
	m.mu.Lock()
	alert := m.lookupLocked(id)
	if alert == nil {
		m.mu.Unlock()
		return nil, false
	}

	now := m.clock.Now()
	m.resolveLocked(alert, now, ResolutionDismissed, actor)
	snapshot := alert.Clone()
	fx := m.effectLocked(effectUpdate, TransitionResolved, snapshot, now)
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"alert_id": id,
		"actor":    actor,
	}).Info("Alert dismissed")

	m.commit(ctx, fx)
	return snapshot, true
}

// Restore loads previously persisted active alerts into an empty registry
// and re-arms escalation with the remaining delay. It returns the number of
// alerts restored.
func (m *Manager) Restore(alerts []*Alert) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	restored := 0
	for _, a := range alerts {
		if a == nil || !a.State.Active() {
			continue
		}
		if _, exists := m.active[a.Key]; exists {
			continue
		}
		alert := a.Clone()
		m.addLocked(alert)
		fired := alert.LastFiredAt
		if fired.IsZero() {
			fired = alert.UpdatedAt
		}
		if last, ok := m.cooldowns[alert.Key]; !ok || fired.After(last) {
			m.cooldowns[alert.Key] = fired
		}
		if m.wantsEscalation(alert) {
			remaining := m.cfg.EscalationDelay - now.Sub(alert.CreatedAt)
			if remaining < 0 {
				remaining = 0
			}
			m.scheduleEscalationLocked(alert.ID, remaining)
		}
		restored++
	}

	metrics.EscalationsPending.Set(float64(len(m.escalations)))
	return restored
}

// Get returns a snapshot of an active alert
func (m *Manager) Get(id string) (*Alert, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	alert := m.lookupLocked(id)
	if alert == nil {
		return nil, false
	}
	return alert.Clone(), true
}

// ActiveAlerts returns snapshots of all active alerts, most severe first and
// newest first within a severity
func (m *Manager) ActiveAlerts() []*Alert {
	m.mu.Lock()
	result := make([]*Alert, 0, len(m.active))
	for _, alert := range m.active {
		result = append(result, alert.Clone())
	}
	m.mu.Unlock()

	sort.Slice(result, func(i, j int) bool {
		ri, rj := result[i].Severity.Rank(), result[j].Severity.Rank()
		if ri != rj {
			return ri > rj
		}
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// CountsByCategory returns the number of active alerts per category
func (m *Manager) CountsByCategory() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[string]int)
	for _, alert := range m.active {
		counts[alert.Category]++
	}
	return counts
}

// CountsBySeverity returns the number of active alerts per severity
func (m *Manager) CountsBySeverity() map[Severity]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[Severity]int)
	for _, alert := range m.active {
		counts[alert.Severity]++
	}
	return counts
}

// ActiveCount returns the number of active alerts
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// PendingEscalations returns the number of armed escalation timers
func (m *Manager) PendingEscalations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.escalations)
}

// LastFired returns the cooldown timestamp for a registry key
func (m *Manager) LastFired(key string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.cooldowns[key]
	return t, ok
}

// Shutdown cancels every pending escalation
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id := range m.escalations {
		m.cancelEscalationLocked(id)
	}
	metrics.EscalationsPending.Set(0)
}

func (m *Manager) lookupLocked(id string) *Alert {
	key, ok := m.byID[id]
	if !ok {
		return nil
	}
	return m.active[key]
}

func (m *Manager) addLocked(alert *Alert) {
	m.active[alert.Key] = alert
	m.byID[alert.ID] = alert.Key
}

func (m *Manager) resolveLocked(alert *Alert, now time.Time, resolution, actor string) {
	alert.State = StateResolved
	alert.ResolvedAt = &now
	alert.ResolvedBy = actor
	alert.Resolution = resolution
	alert.UpdatedAt = now
	m.cancelEscalationLocked(alert.ID)
	delete(m.active, alert.Key)
	delete(m.byID, alert.ID)
}

// commit persists and publishes transitions. It must be called without the
// registry lock held. Commits of one alert run in the order their
// transitions happened.
func (m *Manager) commit(ctx context.Context, effects ...effect) {
	for _, fx := range effects {
		m.commitOne(ctx, fx)
	}

	metrics.SetActiveAlerts(m.CountsByCategory())
	metrics.EscalationsPending.Set(float64(m.PendingEscalations()))
}

func (m *Manager) commitOne(ctx context.Context, fx effect) {
	if fx.seq != nil {
		fx.seq.wait(fx.ticket)
		defer func() {
			fx.seq.done()
			m.releaseSequencer(fx.alert.ID, fx.seq)
		}()
	}

	m.persist(ctx, fx)
	metrics.AlertTransitionsTotal.WithLabelValues(fx.transition, string(fx.alert.Severity)).Inc()

	m.logger.WithFields(logrus.Fields{
		"alert_id":   fx.alert.ID,
		"key":        fx.alert.Key,
		"severity":   fx.alert.Severity,
		"state":      fx.alert.State,
		"transition": fx.transition,
	}).Info("Alert transition")

	if m.publisher != nil {
		m.publisher.Publish(Topic(fx.transition), Event{
			Transition: fx.transition,
			Alert:      fx.alert.Clone(),
			At:         fx.at,
		})
	}
}

func (m *Manager) persist(ctx context.Context, fx effect) {
	if m.repo == nil {
		return
	}

	var err error
	operation := "update"
	if fx.kind == effectCreate {
		operation = "create"
		err = m.repo.Create(ctx, fx.alert)
	} else {
		err = m.repo.Update(ctx, fx.alert)
	}

	if err != nil {
		metrics.PersistenceFailuresTotal.WithLabelValues(operation).Inc()
		m.logger.WithError(err).WithFields(logrus.Fields{
			"alert_id":  fx.alert.ID,
			"operation": operation,
		}).Error("Failed to persist alert, in-memory state kept")
	}
}
