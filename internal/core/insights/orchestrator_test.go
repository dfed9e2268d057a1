package insights

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostdev-ops/rm-alert-engine/internal/core/alerts"
	"github.com/frostdev-ops/rm-alert-engine/internal/core/dedup"
)

type recordingSink struct {
	mu       sync.Mutex
	insights []alerts.Insight
}

func (s *recordingSink) CreateFromInsight(ctx context.Context, in alerts.Insight) *alerts.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insights = append(s.insights, in)
	return &alerts.Alert{ID: in.Title, Title: in.Title, ProducerID: in.ProducerID}
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *recordingPublisher) Publish(topic string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newTestOrchestrator(timeout time.Duration) (*Orchestrator, *recordingSink, *recordingPublisher) {
	logger := testLogger()
	sink := &recordingSink{}
	pub := &recordingPublisher{}
	filter := dedup.NewFilter(dedup.DefaultConfig(), dedup.NewMemoryHistory(), logger)
	o := NewOrchestrator(Config{ProducerTimeout: timeout}, filter, sink, logger, WithPublisher(pub))
	return o, sink, pub
}

func staticProducer(id string, insights ...alerts.Insight) Producer {
	return ProducerFunc(id, func(ctx context.Context) ([]alerts.Insight, error) {
		return insights, nil
	})
}

func TestOrchestrator_IsolatesProducerFailures(t *testing.T) {
	o, sink, _ := newTestOrchestrator(100 * time.Millisecond)

	require.NoError(t, o.Register(staticProducer("booking-curve",
		alerts.Insight{Title: "BCN Route Booking Pace 40% Above Forecast", Description: "barcelona demand surge", ConfidenceScore: 0.8},
		alerts.Insight{Title: "LIS Route Booking Pace Lagging", Description: "lisbon bookings slower than usual", ConfidenceScore: 0.6},
	)))
	require.NoError(t, o.Register(ProducerFunc("broken", func(ctx context.Context) ([]alerts.Insight, error) {
		return nil, errors.New("model endpoint unavailable")
	})))
	require.NoError(t, o.Register(ProducerFunc("panicky", func(ctx context.Context) ([]alerts.Insight, error) {
		panic("nil map")
	})))
	require.NoError(t, o.Register(ProducerFunc("stuck", func(ctx context.Context) ([]alerts.Insight, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})))
	require.NoError(t, o.Register(staticProducer("pricing",
		alerts.Insight{Title: "Fare ladder gap on MAD-CDG", Description: "competitor undercut premium economy", ConfidenceScore: 0.7},
	)))

	result, err := o.RunAnalysisCycle(context.Background())
	require.NoError(t, err)

	assert.Len(t, result.Insights, 3)
	assert.Len(t, result.Accepted, 3)
	assert.Len(t, sink.insights, 3)
	assert.InDelta(t, 0.7, result.OverallConfidence, 1e-9)

	require.Len(t, result.ProducerStats, 5)
	statuses := map[string]string{}
	for _, s := range result.ProducerStats {
		statuses[s.ProducerID] = s.Status
	}
	assert.Equal(t, map[string]string{
		"booking-curve": StatusSuccess,
		"broken":        StatusError,
		"panicky":       StatusPanic,
		"stuck":         StatusTimeout,
		"pricing":       StatusSuccess,
	}, statuses)

	// Registration order is preserved
	assert.Equal(t, "booking-curve", result.ProducerStats[0].ProducerID)
	assert.Equal(t, "pricing", result.ProducerStats[4].ProducerID)
	assert.Equal(t, "booking-curve", result.Accepted[0].ProducerID)
}

func TestOrchestrator_FailureCountsAccumulate(t *testing.T) {
	o, _, _ := newTestOrchestrator(time.Second)
	require.NoError(t, o.Register(ProducerFunc("broken", func(ctx context.Context) ([]alerts.Insight, error) {
		return nil, errors.New("boom")
	})))

	for i := 0; i < 3; i++ {
		_, err := o.RunAnalysisCycle(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, int64(3), o.Last().ProducerStats[0].Failures)
}

func TestOrchestrator_DedupsAcrossCycles(t *testing.T) {
	o, sink, pub := newTestOrchestrator(time.Second)

	insight := alerts.Insight{
		Title:           "BCN Route Booking Pace 40% Above Forecast",
		Description:     "barcelona departures pacing ahead",
		ConfidenceScore: 0.9,
	}
	require.NoError(t, o.Register(staticProducer("booking-curve", insight, insight)))

	first, err := o.RunAnalysisCycle(context.Background())
	require.NoError(t, err)
	assert.Len(t, first.Accepted, 1)
	require.Len(t, first.Rejected, 1)
	assert.Equal(t, dedup.ReasonExactDuplicate, first.Rejected[0].Reason)

	second, err := o.RunAnalysisCycle(context.Background())
	require.NoError(t, err)
	assert.Empty(t, second.Accepted)
	assert.Len(t, second.Rejected, 2)
	assert.Equal(t, 0.0, second.OverallConfidence)

	assert.Len(t, sink.insights, 1)
	assert.Equal(t, []string{TopicAccepted}, pub.topics)
}

func TestOrchestrator_OverlappingCycleIsSkipped(t *testing.T) {
	o, _, _ := newTestOrchestrator(5 * time.Second)

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, o.Register(ProducerFunc("slow", func(ctx context.Context) ([]alerts.Insight, error) {
		close(started)
		<-release
		return nil, nil
	})))

	done := make(chan error, 1)
	go func() {
		_, err := o.RunAnalysisCycle(context.Background())
		done <- err
	}()

	<-started
	assert.True(t, o.Running())
	_, err := o.RunAnalysisCycle(context.Background())
	assert.ErrorIs(t, err, ErrCycleInProgress)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, o.Running())
}

func TestOrchestrator_NormalizesInsights(t *testing.T) {
	o, _, _ := newTestOrchestrator(time.Second)
	require.NoError(t, o.Register(staticProducer("p",
		alerts.Insight{Title: "  ", Description: "dropped"},
		alerts.Insight{Title: "Over confident", Description: "clamped", ConfidenceScore: 1.7},
	)))

	result, err := o.RunAnalysisCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Insights, 1)
	assert.Equal(t, "p", result.Insights[0].ProducerID)
	assert.Equal(t, 1.0, result.Insights[0].ConfidenceScore)
	assert.False(t, result.Insights[0].GeneratedAt.IsZero())
	assert.Equal(t, 1, result.ProducerStats[0].Insights)
}

func TestOrchestrator_Register(t *testing.T) {
	o, _, _ := newTestOrchestrator(time.Second)
	require.NoError(t, o.Register(staticProducer("a")))
	assert.Error(t, o.Register(staticProducer("a")))
	assert.Error(t, o.Register(staticProducer("")))
	assert.Equal(t, []string{"a"}, o.Producers())

	result, err := o.RunAnalysisCycle(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Insights)
	assert.Equal(t, 0.0, result.OverallConfidence)
}
