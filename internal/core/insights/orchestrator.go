package insights

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/rm-alert-engine/internal/core/alerts"
	"github.com/frostdev-ops/rm-alert-engine/internal/core/clock"
	"github.com/frostdev-ops/rm-alert-engine/internal/core/dedup"
	"github.com/frostdev-ops/rm-alert-engine/internal/core/metrics"
)

// TopicAccepted is published for every insight that passed the dedup filter
const TopicAccepted = "insights.accepted"

// Producer run outcomes
const (
	StatusSuccess   = "success"
	StatusError     = "error"
	StatusTimeout   = "timeout"
	StatusPanic     = "panic"
	StatusCancelled = "cancelled"
)

// ErrCycleInProgress is returned when a cycle is triggered while another runs
var ErrCycleInProgress = errors.New("analysis cycle already in progress")

// Filter decides which insights become alerts
type Filter interface {
	Accept(ctx context.Context, in alerts.Insight) dedup.Decision
	Remember(ctx context.Context, in alerts.Insight) error
}

// Sink turns accepted insights into alerts
type Sink interface {
	CreateFromInsight(ctx context.Context, in alerts.Insight) *alerts.Alert
}

// Publisher delivers accepted insights to subscribers
type Publisher interface {
	Publish(topic string, payload interface{})
}

// Config contains orchestrator configuration
type Config struct {
	ProducerTimeout time.Duration
}

// ProducerStats describes one producer's run within a cycle
type ProducerStats struct {
	ProducerID string        `json:"producer_id"`
	Status     string        `json:"status"`
	Insights   int           `json:"insights"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
	// Failures counts failed runs since the orchestrator started
	Failures int64 `json:"failures"`
}

// Rejection records an insight dropped by the dedup filter
type Rejection struct {
	Insight    alerts.Insight `json:"insight"`
	Reason     string         `json:"reason"`
	Similarity float64        `json:"similarity,omitempty"`
}

// AcceptedInsight is the payload published on TopicAccepted
type AcceptedInsight struct {
	Insight alerts.Insight `json:"insight"`
	AlertID string         `json:"alert_id,omitempty"`
	Flagged bool           `json:"flagged,omitempty"`
}

// PartitionKey groups accepted insights by producer
func (a AcceptedInsight) PartitionKey() string {
	return a.Insight.ProducerID
}

// CycleResult is the outcome of one analysis cycle
type CycleResult struct {
	StartedAt         time.Time        `json:"started_at"`
	FinishedAt        time.Time        `json:"finished_at"`
	Insights          []alerts.Insight `json:"insights"`
	Accepted          []alerts.Insight `json:"accepted"`
	Alerts            []*alerts.Alert  `json:"alerts"`
	Rejected          []Rejection      `json:"rejected"`
	ProducerStats     []ProducerStats  `json:"producer_stats"`
	OverallConfidence float64          `json:"overall_confidence"`
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithClock sets the time source
func WithClock(c clock.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithPublisher sets the publisher for accepted insights
func WithPublisher(p Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

// Orchestrator fans out to registered producers and routes their insights
// through the dedup filter into the sink
type Orchestrator struct {
	cfg       Config
	filter    Filter
	sink      Sink
	publisher Publisher
	clock     clock.Clock
	logger    *logrus.Logger

	mu        sync.RWMutex
	producers []Producer
	failures  map[string]int64
	last      *CycleResult

	running atomic.Bool
}

// NewOrchestrator creates a new insight orchestrator
func NewOrchestrator(cfg Config, filter Filter, sink Sink, logger *logrus.Logger, opts ...Option) *Orchestrator {
	if cfg.ProducerTimeout <= 0 {
		cfg.ProducerTimeout = 30 * time.Second
	}
	o := &Orchestrator{
		cfg:      cfg,
		filter:   filter,
		sink:     sink,
		clock:    clock.New(),
		logger:   logger,
		failures: make(map[string]int64),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Register adds a producer. Producer ids must be unique.
func (o *Orchestrator) Register(p Producer) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if strings.TrimSpace(p.ID()) == "" {
		return fmt.Errorf("producer id is required")
	}
	for _, existing := range o.producers {
		if existing.ID() == p.ID() {
			return fmt.Errorf("producer %s already registered", p.ID())
		}
	}
	o.producers = append(o.producers, p)

	o.logger.WithField("producer", p.ID()).Info("Insight producer registered")
	return nil
}

// Producers returns the registered producer ids in registration order
func (o *Orchestrator) Producers() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	ids := make([]string, len(o.producers))
	for i, p := range o.producers {
		ids[i] = p.ID()
	}
	return ids
}

// Running reports whether a cycle is in flight
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// Last returns the result of the most recent completed cycle
func (o *Orchestrator) Last() *CycleResult {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.last
}

type producerResult struct {
	insights []alerts.Insight
	stats    ProducerStats
}

// RunAnalysisCycle runs every producer concurrently, waits for all of them
// to settle, then dedups their insights in registration order. It returns
// ErrCycleInProgress without doing anything if a cycle is already running.
func (o *Orchestrator) RunAnalysisCycle(ctx context.Context) (*CycleResult, error) {
	if !o.running.CompareAndSwap(false, true) {
		metrics.CyclesTotal.WithLabelValues("analysis", "skipped").Inc()
		return nil, ErrCycleInProgress
	}
	defer o.running.Store(false)

	o.mu.RLock()
	producers := append([]Producer(nil), o.producers...)
	o.mu.RUnlock()

	result := &CycleResult{StartedAt: o.clock.Now()}
	start := time.Now()

	results := make([]producerResult, len(producers))
	var wg sync.WaitGroup
	for i, p := range producers {
		wg.Add(1)
		go func(i int, p Producer) {
			defer wg.Done()
			results[i] = o.runProducer(ctx, p)
		}(i, p)
	}
	wg.Wait()

	o.mu.Lock()
	for i := range results {
		stats := &results[i].stats
		if stats.Status != StatusSuccess {
			o.failures[stats.ProducerID]++
		}
		stats.Failures = o.failures[stats.ProducerID]
	}
	o.mu.Unlock()

	for _, r := range results {
		result.ProducerStats = append(result.ProducerStats, r.stats)
		result.Insights = append(result.Insights, r.insights...)
	}

	confidenceSum := 0.0
	for _, in := range result.Insights {
		decision := dedup.Decision{Accepted: true}
		if o.filter != nil {
			decision = o.filter.Accept(ctx, in)
		}
		if !decision.Accepted {
			result.Rejected = append(result.Rejected, Rejection{Insight: in, Reason: decision.Reason, Similarity: decision.Similarity})
			continue
		}

		var alert *alerts.Alert
		if o.sink != nil {
			alert = o.sink.CreateFromInsight(ctx, in)
		}
		if o.filter != nil {
			if err := o.filter.Remember(ctx, in); err != nil {
				o.logger.WithError(err).WithField("producer_id", in.ProducerID).Warn("Failed to record accepted insight")
			}
		}

		result.Accepted = append(result.Accepted, in)
		confidenceSum += in.ConfidenceScore
		payload := AcceptedInsight{Insight: in, Flagged: decision.Flagged}
		if alert != nil {
			result.Alerts = append(result.Alerts, alert)
			payload.AlertID = alert.ID
		}
		if o.publisher != nil {
			o.publisher.Publish(TopicAccepted, payload)
		}
	}
	if len(result.Accepted) > 0 {
		result.OverallConfidence = confidenceSum / float64(len(result.Accepted))
	}
	result.FinishedAt = o.clock.Now()

	o.mu.Lock()
	o.last = result
	o.mu.Unlock()

	metrics.CyclesTotal.WithLabelValues("analysis", "completed").Inc()
	metrics.CycleDuration.WithLabelValues("analysis").Observe(time.Since(start).Seconds())

	o.logger.WithFields(logrus.Fields{
		"producers":          len(producers),
		"insights":           len(result.Insights),
		"accepted":           len(result.Accepted),
		"rejected":           len(result.Rejected),
		"overall_confidence": result.OverallConfidence,
		"duration":           time.Since(start).String(),
	}).Info("Analysis cycle completed")

	return result, nil
}

// runProducer calls one producer with its own timeout. The call runs on a
// separate goroutine so a producer that ignores its context cannot hold the
// cycle past the timeout.
func (o *Orchestrator) runProducer(ctx context.Context, p Producer) producerResult {
	id := p.ID()
	pctx, cancel := context.WithTimeout(ctx, o.cfg.ProducerTimeout)
	defer cancel()

	type outcome struct {
		insights []alerts.Insight
		err      error
		panicked bool
	}
	done := make(chan outcome, 1)
	start := time.Now()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				o.logger.WithFields(logrus.Fields{
					"producer": id,
					"panic":    r,
					"stack":    string(debug.Stack()),
				}).Error("Insight producer panicked")
				done <- outcome{err: fmt.Errorf("producer panic: %v", r), panicked: true}
			}
		}()
		insights, err := p.Analyze(pctx)
		done <- outcome{insights: insights, err: err}
	}()

	stats := ProducerStats{ProducerID: id}
	var res outcome
	select {
	case res = <-done:
	case <-pctx.Done():
		res = outcome{err: pctx.Err()}
	}
	stats.Duration = time.Since(start)

	switch {
	case res.panicked:
		stats.Status = StatusPanic
	case res.err == nil:
		stats.Status = StatusSuccess
	case errors.Is(res.err, context.DeadlineExceeded):
		stats.Status = StatusTimeout
	case errors.Is(res.err, context.Canceled):
		stats.Status = StatusCancelled
	default:
		stats.Status = StatusError
	}

	metrics.ProducerRunsTotal.WithLabelValues(id, stats.Status).Inc()
	metrics.ProducerDuration.WithLabelValues(id).Observe(stats.Duration.Seconds())

	if res.err != nil {
		stats.Error = res.err.Error()
		if !res.panicked {
			o.logger.WithError(res.err).WithFields(logrus.Fields{
				"producer": id,
				"status":   stats.Status,
			}).Warn("Insight producer failed")
		}
		return producerResult{stats: stats}
	}

	insights := o.normalize(id, res.insights)
	stats.Insights = len(insights)
	return producerResult{insights: insights, stats: stats}
}

// normalize fills producer ids and timestamps, clamps confidence to [0, 1]
// and drops untitled insights
func (o *Orchestrator) normalize(producerID string, in []alerts.Insight) []alerts.Insight {
	now := o.clock.Now()
	out := make([]alerts.Insight, 0, len(in))
	for _, insight := range in {
		if strings.TrimSpace(insight.Title) == "" {
			o.logger.WithField("producer", producerID).Debug("Dropping insight without title")
			continue
		}
		if insight.ProducerID == "" {
			insight.ProducerID = producerID
		}
		if insight.GeneratedAt.IsZero() {
			insight.GeneratedAt = now
		}
		switch {
		case insight.ConfidenceScore < 0:
			insight.ConfidenceScore = 0
		case insight.ConfidenceScore > 1:
			insight.ConfidenceScore = 1
		}
		out = append(out, insight)
	}
	return out
}
