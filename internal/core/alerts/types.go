package alerts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Severity represents the severity level of an alert
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Rank orders severities from info (1) to critical (3). Unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 1
	case SeverityWarning:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 0
	}
}

// Valid reports whether s is a known severity
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// State is the lifecycle state of an alert
type State string

const (
	StateRaised       State = "raised"
	StateAcknowledged State = "acknowledged"
	StateEscalated    State = "escalated"
	StateResolved     State = "resolved"
)

// Active reports whether the alert belongs in the active registry
func (s State) Active() bool {
	return s == StateRaised || s == StateAcknowledged || s == StateEscalated
}

// Direction says whether higher or lower metric values are healthy
type Direction string

const (
	HigherIsBetter Direction = "higherIsBetter"
	LowerIsBetter  Direction = "lowerIsBetter"
)

// Transition names carried by lifecycle events
const (
	TransitionRaised       = "raised"
	TransitionUpdated      = "updated"
	TransitionAcknowledged = "acknowledged"
	TransitionEscalated    = "escalated"
	TransitionResolved     = "resolved"
)

// Resolution reasons
const (
	ResolutionRecovered = "recovered"
	ResolutionDismissed = "dismissed"
)

const (
	// CategoryInsight is used for insight alerts that carry no category
	CategoryInsight = "insight"
	// CategoryPerformance is used for metric alerts whose spec carries no category
	CategoryPerformance = "performance"
)

// ErrAlertNotFound is returned when an alert id is not in the active registry
var ErrAlertNotFound = errors.New("alert not found")

// Alert is a lifecycle object tracked once an insight is accepted or a
// threshold breach is detected
type Alert struct {
	ID             string     `json:"id"`
	Key            string     `json:"key"`
	MetricName     string     `json:"metric_name,omitempty"`
	Category       string     `json:"category"`
	Severity       Severity   `json:"severity"`
	State          State      `json:"state"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Recommendation string     `json:"recommendation,omitempty"`
	CurrentValue   *float64   `json:"current_value,omitempty"`
	Threshold      *float64   `json:"threshold,omitempty"`
	ProducerID     string     `json:"producer_id,omitempty"`
	RouteID        string     `json:"route_id,omitempty"`
	Confidence     *float64   `json:"confidence,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	LastFiredAt    time.Time  `json:"last_fired_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
	EscalatedAt    *time.Time `json:"escalated_at,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy     string     `json:"resolved_by,omitempty"`
	Resolution     string     `json:"resolution,omitempty"`
}

// Clone returns a deep copy of the alert
func (a *Alert) Clone() *Alert {
	if a == nil {
		return nil
	}
	c := *a
	c.CurrentValue = cloneFloat(a.CurrentValue)
	c.Threshold = cloneFloat(a.Threshold)
	c.Confidence = cloneFloat(a.Confidence)
	c.AcknowledgedAt = cloneTime(a.AcknowledgedAt)
	c.EscalatedAt = cloneTime(a.EscalatedAt)
	c.ResolvedAt = cloneTime(a.ResolvedAt)
	return &c
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// Insight is candidate alert content produced by an analysis producer
type Insight struct {
	Title           string                 `json:"title"`
	Description     string                 `json:"description"`
	ProducerID      string                 `json:"producer_id"`
	RouteID         string                 `json:"route_id,omitempty"`
	Category        string                 `json:"category,omitempty"`
	Severity        Severity               `json:"severity,omitempty"`
	Recommendation  string                 `json:"recommendation,omitempty"`
	ConfidenceScore float64                `json:"confidence_score"`
	SupportingData  map[string]interface{} `json:"supporting_data,omitempty"`
	GeneratedAt     time.Time              `json:"generated_at"`
}

// ThresholdSpec configures how one metric is evaluated
type ThresholdSpec struct {
	Metric         string    `json:"metric"`
	Label          string    `json:"label,omitempty"`
	Category       string    `json:"category,omitempty"`
	Unit           string    `json:"unit,omitempty"`
	Target         float64   `json:"target"`
	Warning        float64   `json:"warning"`
	Critical       float64   `json:"critical"`
	Direction      Direction `json:"direction"`
	Recommendation string    `json:"recommendation,omitempty"`
	// DefaultValue is used when the metric source fails and no value was seen yet
	DefaultValue *float64 `json:"default_value,omitempty"`
}

// Validate checks that the threshold levels are consistent
func (s ThresholdSpec) Validate() error {
	if strings.TrimSpace(s.Metric) == "" {
		return fmt.Errorf("threshold metric name is required")
	}
	switch s.Direction {
	case HigherIsBetter:
		if s.Critical > s.Warning {
			return fmt.Errorf("metric %s: critical (%v) must not exceed warning (%v) when higher is better", s.Metric, s.Critical, s.Warning)
		}
	case LowerIsBetter:
		if s.Critical < s.Warning {
			return fmt.Errorf("metric %s: critical (%v) must not be below warning (%v) when lower is better", s.Metric, s.Critical, s.Warning)
		}
	default:
		return fmt.Errorf("metric %s: unknown direction %q", s.Metric, s.Direction)
	}
	return nil
}

// ThresholdFor returns the threshold crossed at the given severity
func (s ThresholdSpec) ThresholdFor(severity Severity) float64 {
	if severity == SeverityCritical {
		return s.Critical
	}
	return s.Warning
}

// DisplayName returns the label, or a title-cased metric name
func (s ThresholdSpec) DisplayName() string {
	if s.Label != "" {
		return s.Label
	}
	words := strings.Fields(strings.ReplaceAll(s.Metric, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// MetricKey is the registry key of a threshold alert
func MetricKey(metric string) string {
	return "metric:" + metric
}

// InsightKey is the registry key of an insight alert
func InsightKey(producerID, title string) string {
	name := producerID + "\x00" + strings.ToLower(strings.TrimSpace(title))
	return "insight:" + producerID + ":" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

// Event is published on every lifecycle transition
type Event struct {
	Transition string    `json:"transition"`
	Alert      *Alert    `json:"alert"`
	At         time.Time `json:"at"`
}

// Topic returns the notification topic for the event
func (e Event) Topic() string {
	return Topic(e.Transition)
}

// PartitionKey keeps events of one alert together on ordered transports
func (e Event) PartitionKey() string {
	if e.Alert == nil {
		return ""
	}
	return e.Alert.Key
}

// Topic returns the notification topic for a transition
func Topic(transition string) string {
	return "alerts." + transition
}

// ListFilter narrows repository listings
type ListFilter struct {
	States         []State
	Category       string
	ResolvedBefore *time.Time
	Limit          int
}

// Repository is the durable system of record for alerts
type Repository interface {
	Create(ctx context.Context, alert *Alert) error
	Update(ctx context.Context, alert *Alert) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter ListFilter) ([]*Alert, error)
}

// Publisher delivers lifecycle events on a best-effort basis
type Publisher interface {
	Publish(topic string, payload interface{})
}
