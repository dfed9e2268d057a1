package insights

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/frostdev-ops/rm-alert-engine/internal/core/alerts"
	"github.com/frostdev-ops/rm-alert-engine/internal/core/clock"
	"github.com/frostdev-ops/rm-alert-engine/internal/core/metricsource"
)

// TrendConfig configures a TrendProducer
type TrendConfig struct {
	ID       string
	Metric   string
	Label    string
	RouteID  string
	Category string
	// Window is the length of the current and previous comparison windows
	Window time.Duration
	// ChangeThreshold is the relative change that produces an insight, e.g. 0.25
	ChangeThreshold float64
	Recommendation  string
}

// TrendProducer compares a metric over the current window with the window
// before it and reports large relative moves
type TrendProducer struct {
	cfg    TrendConfig
	source metricsource.Source
	clock  clock.Clock
}

// NewTrendProducer creates a trend producer
func NewTrendProducer(cfg TrendConfig, source metricsource.Source, clk clock.Clock) (*TrendProducer, error) {
	if cfg.ID == "" || cfg.Metric == "" {
		return nil, fmt.Errorf("trend producer requires id and metric")
	}
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("trend producer %s: window must be positive", cfg.ID)
	}
	if cfg.ChangeThreshold <= 0 {
		return nil, fmt.Errorf("trend producer %s: change threshold must be positive", cfg.ID)
	}
	if cfg.Label == "" {
		cfg.Label = alerts.ThresholdSpec{Metric: cfg.Metric}.DisplayName()
	}
	if clk == nil {
		clk = clock.New()
	}
	return &TrendProducer{cfg: cfg, source: source, clock: clk}, nil
}

func (p *TrendProducer) ID() string { return p.cfg.ID }

func (p *TrendProducer) Analyze(ctx context.Context) ([]alerts.Insight, error) {
	now := p.clock.Now()
	current, err := p.source.Value(ctx, p.cfg.Metric, metricsource.Window(now, p.cfg.Window))
	if errors.Is(err, metricsource.ErrNoData) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("current window: %w", err)
	}
	previous, err := p.source.Value(ctx, p.cfg.Metric, metricsource.Window(now.Add(-p.cfg.Window), p.cfg.Window))
	if errors.Is(err, metricsource.ErrNoData) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("previous window: %w", err)
	}

	if previous == 0 {
		return nil, nil
	}
	change := (current - previous) / math.Abs(previous)
	if math.Abs(change) < p.cfg.ChangeThreshold {
		return nil, nil
	}

	direction := "Above"
	movement := "rose"
	if change < 0 {
		direction = "Below"
		movement = "fell"
	}
	pct := math.Round(math.Abs(change) * 100)

	return []alerts.Insight{{
		Title: fmt.Sprintf("%s %.0f%% %s Previous Period", p.cfg.Label, pct, direction),
		Description: fmt.Sprintf("%s %s from %.2f to %.2f over the last %s compared with the %s before",
			p.cfg.Label, movement, previous, current, p.cfg.Window, p.cfg.Window),
		ProducerID:      p.cfg.ID,
		RouteID:         p.cfg.RouteID,
		Category:        p.cfg.Category,
		Recommendation:  p.cfg.Recommendation,
		ConfidenceScore: math.Min(1, 0.5+math.Abs(change)/2),
		SupportingData: map[string]interface{}{
			"metric":         p.cfg.Metric,
			"current":        current,
			"previous":       previous,
			"change_percent": change * 100,
			"window":         p.cfg.Window.String(),
		},
		GeneratedAt: now,
	}}, nil
}
