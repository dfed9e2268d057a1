package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/rm-alert-engine/internal/core/alerts"
	"github.com/frostdev-ops/rm-alert-engine/internal/core/clock"
	"github.com/frostdev-ops/rm-alert-engine/internal/core/metrics"
)

// Rejection and acceptance reasons
const (
	ReasonExactDuplicate = "exact_duplicate"
	ReasonSimilarContent = "similar_content"
	ReasonRateLimited    = "rate_limited"
	ReasonCheckFailed    = "check_failed"
)

// Rate limit modes
const (
	RateLimitReject = "reject"
	RateLimitFlag   = "flag"
)

// RateLimitConfig is the per-producer spam guard
type RateLimitConfig struct {
	// Max is the number of accepted insights allowed inside Window; 0 disables the guard
	Max    int
	Window time.Duration
	Mode   string
}

// Config contains dedup filter configuration
type Config struct {
	HoursBack           time.Duration
	SimilarityThreshold float64
	MaxKeywords         int
	RecentLimit         int
	// FuzzyWindow bounds the records compared for similarity; zero means HoursBack
	FuzzyWindow time.Duration
	RateLimit   RateLimitConfig
}

// DefaultConfig returns the default dedup configuration
func DefaultConfig() Config {
	return Config{
		HoursBack:           24 * time.Hour,
		SimilarityThreshold: 0.7,
		MaxKeywords:         10,
		RecentLimit:         20,
		RateLimit: RateLimitConfig{
			Max:    10,
			Window: time.Hour,
			Mode:   RateLimitReject,
		},
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.HoursBack <= 0 {
		return fmt.Errorf("dedup hours_back must be positive")
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("dedup similarity_threshold must be in (0, 1], got %v", c.SimilarityThreshold)
	}
	if c.MaxKeywords <= 0 {
		return fmt.Errorf("dedup max_keywords must be positive")
	}
	if c.RateLimit.Max < 0 {
		return fmt.Errorf("dedup rate_limit.max must not be negative")
	}
	if c.RateLimit.Max > 0 && c.RateLimit.Window <= 0 {
		return fmt.Errorf("dedup rate_limit.window must be positive when the rate limit is enabled")
	}
	switch c.RateLimit.Mode {
	case "", RateLimitReject, RateLimitFlag:
	default:
		return fmt.Errorf("dedup rate_limit.mode must be %q or %q", RateLimitReject, RateLimitFlag)
	}
	return nil
}

// Decision is the result of checking one insight
type Decision struct {
	Accepted   bool    `json:"accepted"`
	Reason     string  `json:"reason,omitempty"`
	Similarity float64 `json:"similarity,omitempty"`
	// Flagged is set when the spam guard tripped in flag mode
	Flagged bool `json:"flagged,omitempty"`
}

// Option configures a Filter
type Option func(*Filter)

// WithClock sets the time source
func WithClock(c clock.Clock) Option {
	return func(f *Filter) { f.clock = c }
}

// Filter decides whether candidate insights duplicate recently accepted ones
type Filter struct {
	cfg     Config
	history History
	clock   clock.Clock
	logger  *logrus.Logger
}

// NewFilter creates a new dedup filter
func NewFilter(cfg Config, history History, logger *logrus.Logger, opts ...Option) *Filter {
	if cfg.FuzzyWindow <= 0 {
		cfg.FuzzyWindow = cfg.HoursBack
	}
	if cfg.RateLimit.Mode == "" {
		cfg.RateLimit.Mode = RateLimitReject
	}
	f := &Filter{
		cfg:     cfg,
		history: history,
		clock:   clock.New(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Accept checks an insight against the history. It never writes: callers
// record accepted insights with Remember once the alert exists. Any history
// error makes the filter fail open.
func (f *Filter) Accept(ctx context.Context, in alerts.Insight) Decision {
	decision, err := f.check(ctx, in)
	if err != nil {
		f.logger.WithError(err).WithFields(logrus.Fields{
			"producer_id": in.ProducerID,
			"title":       in.Title,
		}).Warn("Dedup check failed, accepting insight")
		decision = Decision{Accepted: true, Reason: ReasonCheckFailed}
	}

	result := "accepted"
	if !decision.Accepted {
		result = "rejected"
	}
	metrics.DedupDecisionsTotal.WithLabelValues(result, decision.Reason).Inc()

	if !decision.Accepted {
		f.logger.WithFields(logrus.Fields{
			"producer_id": in.ProducerID,
			"title":       in.Title,
			"reason":      decision.Reason,
			"similarity":  decision.Similarity,
		}).Debug("Insight rejected as duplicate")
	}
	return decision
}

func (f *Filter) check(ctx context.Context, in alerts.Insight) (Decision, error) {
	now := f.clock.Now()

	exact, err := f.history.CountExact(ctx, in.ProducerID, NormalizeTitle(in.Title), now.Add(-f.cfg.HoursBack))
	if err != nil {
		return Decision{}, fmt.Errorf("exact check: %w", err)
	}
	if exact > 0 {
		return Decision{Reason: ReasonExactDuplicate, Similarity: 1}, nil
	}

	keywords := Keywords(in.Description, f.cfg.MaxKeywords)
	recent, err := f.history.Recent(ctx, in.ProducerID, now.Add(-f.cfg.FuzzyWindow), f.cfg.RecentLimit)
	if err != nil {
		return Decision{}, fmt.Errorf("fuzzy check: %w", err)
	}
	best := 0.0
	for _, rec := range recent {
		if s := Jaccard(keywords, rec.Keywords); s > best {
			best = s
		}
	}
	if best >= f.cfg.SimilarityThreshold {
		return Decision{Reason: ReasonSimilarContent, Similarity: best}, nil
	}

	decision := Decision{Accepted: true, Similarity: best}
	if f.cfg.RateLimit.Max > 0 {
		count, err := f.history.CountSince(ctx, in.ProducerID, now.Add(-f.cfg.RateLimit.Window))
		if err != nil {
			return Decision{}, fmt.Errorf("rate check: %w", err)
		}
		if count >= f.cfg.RateLimit.Max {
			if f.cfg.RateLimit.Mode == RateLimitFlag {
				decision.Flagged = true
				decision.Reason = ReasonRateLimited
				f.logger.WithFields(logrus.Fields{
					"producer_id": in.ProducerID,
					"count":       count,
					"max":         f.cfg.RateLimit.Max,
				}).Warn("Producer over rate limit, insight flagged")
			} else {
				return Decision{Reason: ReasonRateLimited, Similarity: best}, nil
			}
		}
	}
	return decision, nil
}

// Remember records an accepted insight so later candidates are compared
// against it
func (f *Filter) Remember(ctx context.Context, in alerts.Insight) error {
	rec := Record{
		ID:         uuid.New().String(),
		ProducerID: in.ProducerID,
		Title:      in.Title,
		TitleKey:   NormalizeTitle(in.Title),
		Keywords:   Keywords(in.Description, f.cfg.MaxKeywords),
		CreatedAt:  f.clock.Now(),
	}
	if err := f.history.Record(ctx, rec); err != nil {
		return fmt.Errorf("failed to record insight: %w", err)
	}
	return nil
}

// Config returns the effective configuration
func (f *Filter) Config() Config {
	return f.cfg
}
