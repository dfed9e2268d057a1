package metricsource

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/rm-alert-engine/internal/core/alerts"
	"github.com/frostdev-ops/rm-alert-engine/internal/core/metrics"
)

// ErrNoData is returned when a source has no value for the requested range
var ErrNoData = errors.New("no metric data in range")

// DateRange is a half-open time window [From, To)
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Window returns the range of length d ending at end
func Window(end time.Time, d time.Duration) DateRange {
	return DateRange{From: end.Add(-d), To: end}
}

// Source returns the current value of a metric over a window
type Source interface {
	Value(ctx context.Context, metric string, r DateRange) (float64, error)
}

// StaticSource serves fixed values, mainly for tests and demos
type StaticSource struct {
	mu     sync.RWMutex
	values map[string]float64
	errs   map[string]error
}

// NewStaticSource creates a static source from a value table
func NewStaticSource(values map[string]float64) *StaticSource {
	s := &StaticSource{
		values: make(map[string]float64, len(values)),
		errs:   make(map[string]error),
	}
	for k, v := range values {
		s.values[k] = v
	}
	return s
}

// Set replaces the value of a metric and clears its error
func (s *StaticSource) Set(metric string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[metric] = value
	delete(s.errs, metric)
}

// Fail makes reads of metric return err
func (s *StaticSource) Fail(metric string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[metric] = err
}

func (s *StaticSource) Value(ctx context.Context, metric string, r DateRange) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err, ok := s.errs[metric]; ok {
		return 0, err
	}
	v, ok := s.values[metric]
	if !ok {
		return 0, ErrNoData
	}
	return v, nil
}

// Fallback names the origin of a value returned by FallbackSource
type Fallback string

const (
	FallbackNone      Fallback = ""
	FallbackLastKnown Fallback = "last_known"
	FallbackDefault   Fallback = "default"
	FallbackTarget    Fallback = "target"
)

// Reading is a resolved metric value and where it came from
type Reading struct {
	Value    float64  `json:"value"`
	Fallback Fallback `json:"fallback,omitempty"`
	Err      error    `json:"-"`
}

// FallbackSource wraps a Source so that a failed read never stops a
// monitoring cycle. Failed reads fall back to the last value seen, then to
// the threshold's default value, then to its target.
type FallbackSource struct {
	source Source
	logger *logrus.Logger

	mu        sync.RWMutex
	lastKnown map[string]float64
}

// NewFallbackSource wraps source
func NewFallbackSource(source Source, logger *logrus.Logger) *FallbackSource {
	return &FallbackSource{
		source:    source,
		logger:    logger,
		lastKnown: make(map[string]float64),
	}
}

// Read returns the value of spec's metric over r, substituting a fallback
// when the underlying source fails or returns a non-finite number
func (f *FallbackSource) Read(ctx context.Context, spec alerts.ThresholdSpec, r DateRange) Reading {
	value, err := f.source.Value(ctx, spec.Metric, r)
	if err == nil && (math.IsNaN(value) || math.IsInf(value, 0)) {
		err = fmt.Errorf("source returned non-finite value %v", value)
	}
	if err == nil {
		f.mu.Lock()
		f.lastKnown[spec.Metric] = value
		f.mu.Unlock()
		return Reading{Value: value}
	}

	reading := Reading{Err: err}
	f.mu.RLock()
	last, ok := f.lastKnown[spec.Metric]
	f.mu.RUnlock()

	switch {
	case ok:
		reading.Value, reading.Fallback = last, FallbackLastKnown
	case spec.DefaultValue != nil:
		reading.Value, reading.Fallback = *spec.DefaultValue, FallbackDefault
	default:
		reading.Value, reading.Fallback = spec.Target, FallbackTarget
	}

	metrics.MetricSourceFallbacksTotal.WithLabelValues(spec.Metric, string(reading.Fallback)).Inc()
	f.logger.WithError(err).WithFields(logrus.Fields{
		"metric":   spec.Metric,
		"fallback": reading.Fallback,
		"value":    reading.Value,
	}).Warn("Metric source failed, using fallback value")

	return reading
}

// LastKnown returns the last successfully read value of a metric
func (f *FallbackSource) LastKnown(metric string) (float64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.lastKnown[metric]
	return v, ok
}
