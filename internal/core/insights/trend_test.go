package insights

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostdev-ops/rm-alert-engine/internal/core/clock"
	"github.com/frostdev-ops/rm-alert-engine/internal/core/metricsource"
)

// windowSource returns a value per window start
type windowSource map[int64]float64

func (s windowSource) Value(ctx context.Context, metric string, r metricsource.DateRange) (float64, error) {
	v, ok := s[r.From.Unix()]
	if !ok {
		return 0, metricsource.ErrNoData
	}
	return v, nil
}

type errSource struct{}

func (errSource) Value(ctx context.Context, metric string, r metricsource.DateRange) (float64, error) {
	return 0, errors.New("warehouse offline")
}

func TestTrendProducer(t *testing.T) {
	now := time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)
	window := 24 * time.Hour
	cfg := TrendConfig{
		ID:              "booking-curve",
		Metric:          "bcn_booking_pace",
		Label:           "BCN Route Booking Pace",
		RouteID:         "MAD-BCN",
		Window:          window,
		ChangeThreshold: 0.25,
	}

	tests := []struct {
		name      string
		current   float64
		previous  float64
		wantTitle string
	}{
		{"rise above threshold", 140, 100, "BCN Route Booking Pace 40% Above Previous Period"},
		{"drop above threshold", 70, 100, "BCN Route Booking Pace 30% Below Previous Period"},
		{"small change", 110, 100, ""},
		{"zero baseline", 50, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := windowSource{
				now.Add(-window).Unix():     tt.current,
				now.Add(-2 * window).Unix(): tt.previous,
			}
			p, err := NewTrendProducer(cfg, src, clock.NewFake(now))
			require.NoError(t, err)

			insights, err := p.Analyze(context.Background())
			require.NoError(t, err)
			if tt.wantTitle == "" {
				assert.Empty(t, insights)
				return
			}
			require.Len(t, insights, 1)
			assert.Equal(t, tt.wantTitle, insights[0].Title)
			assert.Equal(t, "MAD-BCN", insights[0].RouteID)
			assert.Equal(t, "booking-curve", insights[0].ProducerID)
			assert.Greater(t, insights[0].ConfidenceScore, 0.5)
			assert.LessOrEqual(t, insights[0].ConfidenceScore, 1.0)
		})
	}
}

func TestTrendProducer_MissingDataAndErrors(t *testing.T) {
	now := time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)
	cfg := TrendConfig{ID: "t", Metric: "m", Window: time.Hour, ChangeThreshold: 0.1}

	p, err := NewTrendProducer(cfg, windowSource{}, clock.NewFake(now))
	require.NoError(t, err)
	insights, err := p.Analyze(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, insights)

	p, err = NewTrendProducer(cfg, errSource{}, clock.NewFake(now))
	require.NoError(t, err)
	_, err = p.Analyze(context.Background())
	assert.Error(t, err)

	_, err = NewTrendProducer(TrendConfig{ID: "x", Metric: "m"}, errSource{}, nil)
	assert.Error(t, err)
}
