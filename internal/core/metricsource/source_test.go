package metricsource

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/frostdev-ops/rm-alert-engine/internal/core/alerts"
)

func TestFallbackSource(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	static := NewStaticSource(map[string]float64{"system_availability": 99.7})
	src := NewFallbackSource(static, logger)
	ctx := context.Background()
	r := Window(time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), time.Hour)

	spec := alerts.ThresholdSpec{Metric: "system_availability", Target: 99.9, Warning: 99.5, Critical: 99.0, Direction: alerts.HigherIsBetter}

	reading := src.Read(ctx, spec, r)
	assert.Equal(t, 99.7, reading.Value)
	assert.Equal(t, FallbackNone, reading.Fallback)
	assert.NoError(t, reading.Err)

	static.Fail("system_availability", errors.New("warehouse timeout"))
	reading = src.Read(ctx, spec, r)
	assert.Equal(t, 99.7, reading.Value)
	assert.Equal(t, FallbackLastKnown, reading.Fallback)
	assert.Error(t, reading.Err)

	unknown := alerts.ThresholdSpec{Metric: "forecast_accuracy", Target: 92}
	reading = src.Read(ctx, unknown, r)
	assert.Equal(t, 92.0, reading.Value)
	assert.Equal(t, FallbackTarget, reading.Fallback)
	assert.ErrorIs(t, reading.Err, ErrNoData)

	def := 88.0
	unknown.DefaultValue = &def
	reading = src.Read(ctx, unknown, r)
	assert.Equal(t, 88.0, reading.Value)
	assert.Equal(t, FallbackDefault, reading.Fallback)

	static.Set("forecast_accuracy", math.NaN())
	reading = src.Read(ctx, unknown, r)
	assert.Equal(t, FallbackDefault, reading.Fallback)
	_, seen := src.LastKnown("forecast_accuracy")
	assert.False(t, seen)
}

func TestWindow(t *testing.T) {
	end := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	r := Window(end, 24*time.Hour)
	assert.Equal(t, end.Add(-24*time.Hour), r.From)
	assert.Equal(t, end, r.To)
}
