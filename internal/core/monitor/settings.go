package monitor

import (
	"fmt"
	"time"

	"github.com/frostdev-ops/rm-alert-engine/internal/config"
	"github.com/frostdev-ops/rm-alert-engine/internal/core/alerts"
	"github.com/frostdev-ops/rm-alert-engine/internal/core/dedup"
	"github.com/frostdev-ops/rm-alert-engine/internal/core/insights"
)

// SpecsFromConfig converts configured thresholds to validated specs. An
// empty table falls back to config.DefaultThresholds.
func SpecsFromConfig(thresholds []config.ThresholdConfig) ([]alerts.ThresholdSpec, error) {
	if len(thresholds) == 0 {
		thresholds = config.DefaultThresholds()
	}

	specs := make([]alerts.ThresholdSpec, 0, len(thresholds))
	for _, t := range thresholds {
		spec := alerts.ThresholdSpec{
			Metric:         t.Metric,
			Label:          t.Label,
			Category:       t.Category,
			Unit:           t.Unit,
			Target:         t.Target,
			Warning:        t.Warning,
			Critical:       t.Critical,
			Direction:      alerts.Direction(t.Direction),
			Recommendation: t.Recommendation,
			DefaultValue:   t.DefaultValue,
		}
		if err := spec.Validate(); err != nil {
			return nil, fmt.Errorf("invalid threshold: %w", err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// ManagerConfigFromConfig converts monitoring settings to lifecycle timings
func ManagerConfigFromConfig(cfg config.MonitoringConfig) alerts.ManagerConfig {
	return alerts.ManagerConfig{
		CooldownWindow:    time.Duration(cfg.AlertCooldownMinutes) * time.Minute,
		EscalationEnabled: cfg.EscalationEnabled,
		EscalationDelay:   time.Duration(cfg.EscalationDelayMinutes) * time.Minute,
	}
}

// DedupConfigFromConfig converts dedup settings to a filter configuration
func DedupConfigFromConfig(cfg config.DedupConfig) dedup.Config {
	return dedup.Config{
		HoursBack:           time.Duration(cfg.HoursBack) * time.Hour,
		SimilarityThreshold: cfg.SimilarityThreshold,
		MaxKeywords:         cfg.MaxKeywords,
		RecentLimit:         cfg.RecentLimit,
		FuzzyWindow:         time.Duration(cfg.FuzzyWindowHours) * time.Hour,
		RateLimit: dedup.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute,
			Mode:   cfg.RateLimit.Mode,
		},
	}
}

// TrendConfigsFromConfig converts trend producer declarations. A missing
// window means one day.
func TrendConfigsFromConfig(producers []config.TrendProducerConfig) []insights.TrendConfig {
	out := make([]insights.TrendConfig, 0, len(producers))
	for _, p := range producers {
		out = append(out, insights.TrendConfig{
			ID:              p.ID,
			Metric:          p.Metric,
			Label:           p.Label,
			RouteID:         p.RouteID,
			Category:        p.Category,
			Window:          config.ParseDuration(p.Window, 24*time.Hour),
			ChangeThreshold: p.ChangeThreshold,
			Recommendation:  p.Recommendation,
		})
	}
	return out
}
