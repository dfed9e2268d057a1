package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const prefix = "rmalert"

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// WebSocket metrics
	WebsocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: prefix + "_websocket_connections",
			Help: "Number of connected dashboard clients",
		},
	)

	// Alert lifecycle metrics
	AlertTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_alert_transitions_total",
			Help: "Total number of alert lifecycle transitions",
		},
		[]string{"transition", "severity"},
	)

	AlertsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: prefix + "_alerts_active",
			Help: "Number of active alerts per category",
		},
		[]string{"category"},
	)

	EscalationsPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: prefix + "_escalations_pending",
			Help: "Number of scheduled escalations waiting to fire",
		},
	)

	AlertsSuppressedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_alerts_suppressed_total",
			Help: "Threshold breaches suppressed by the cooldown window",
		},
		[]string{"metric"},
	)

	PersistenceFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_persistence_failures_total",
			Help: "Alert store writes that failed",
		},
		[]string{"operation"},
	)

	// Monitoring cycle metrics
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_cycles_total",
			Help: "Monitoring and analysis cycles by outcome",
		},
		[]string{"cycle", "status"}, // status: completed, skipped
	)

	CycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_cycle_duration_seconds",
			Help:    "Duration of monitoring and analysis cycles",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"cycle"},
	)

	MetricSourceFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_metric_source_fallbacks_total",
			Help: "Metric reads answered from a fallback value",
		},
		[]string{"metric", "fallback"},
	)

	// Insight metrics
	ProducerRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_producer_runs_total",
			Help: "Insight producer invocations by outcome",
		},
		[]string{"producer", "status"}, // status: success, error, timeout, panic
	)

	ProducerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_producer_duration_seconds",
			Help:    "Insight producer latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"producer"},
	)

	DedupDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_dedup_decisions_total",
			Help: "Dedup filter decisions",
		},
		[]string{"result", "reason"},
	)

	// Notification metrics
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_notifications_total",
			Help: "Notification handler deliveries by outcome",
		},
		[]string{"topic", "status"},
	)

	KafkaPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_kafka_publish_total",
			Help: "Kafka publish attempts by outcome",
		},
		[]string{"status"},
	)

	KafkaPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_kafka_publish_retries_total",
			Help: "Kafka publish retries",
		},
	)
)

// RecordHTTPRequest records one served request
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// SetActiveAlerts replaces the per-category active alert gauge
func SetActiveAlerts(byCategory map[string]int) {
	AlertsActive.Reset()
	for category, count := range byCategory {
		AlertsActive.WithLabelValues(category).Set(float64(count))
	}
}
