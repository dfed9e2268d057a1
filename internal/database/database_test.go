package database

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostdev-ops/rm-alert-engine/internal/config"
	"github.com/frostdev-ops/rm-alert-engine/internal/core/alerts"
	"github.com/frostdev-ops/rm-alert-engine/internal/core/dedup"
	"github.com/frostdev-ops/rm-alert-engine/internal/database/sqlite"
)

func TestInitializeAndMigrate(t *testing.T) {
	db, err := Initialize(config.DatabaseConfig{
		Driver:         "sqlite",
		Path:           filepath.Join(t.TempDir(), "nested", "alerts.db"),
		MaxConnections: 4,
	})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(db.DB, ""))
	// Running again is a no-op
	require.NoError(t, Migrate(db.DB, ""))

	version, dirty, err := Version(db.DB, "")
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(3), version)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	repos := NewRepositories(db, logger)

	now := time.Now().UTC()
	require.NoError(t, repos.Alerts.Create(context.Background(), &alerts.Alert{
		ID: "x", Key: "metric:m", Category: "operations", Severity: alerts.SeverityWarning,
		State: alerts.StateRaised, Title: "m", CreatedAt: now, UpdatedAt: now,
	}))
	listed, err := repos.Alerts.List(context.Background(), alerts.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	require.NoError(t, MigrateDown(db.DB, "", 0))
	version, _, err = Version(db.DB, "")
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
}

func TestInitialize_RejectsUnknownDriver(t *testing.T) {
	_, err := Initialize(config.DatabaseConfig{Driver: "postgres", Path: "x"})
	assert.Error(t, err)
}

func TestRepositories_Prune(t *testing.T) {
	db, err := Initialize(config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "alerts.db")})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, Migrate(db.DB, ""))

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	repos := NewRepositories(db, logger)
	ctx := context.Background()

	now := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	for i, age := range []time.Duration{time.Hour, 30 * time.Hour, 72 * time.Hour} {
		require.NoError(t, repos.Insights.Record(ctx, dedup.Record{
			ID:         fmt.Sprintf("h-%d", i),
			ProducerID: "pricing",
			Title:      "Fare Ladder Gap",
			TitleKey:   "fare ladder gap",
			CreatedAt:  now.Add(-age),
		}))
	}
	require.NoError(t, repos.Samples.Record(ctx,
		sqlite.MetricSample{Metric: "forecast_accuracy", Value: 91, RecordedAt: now.Add(-24 * time.Hour)},
		sqlite.MetricSample{Metric: "forecast_accuracy", Value: 90, RecordedAt: now.Add(-40 * 24 * time.Hour)},
	))

	result, err := repos.Prune(ctx, RetentionPolicy{InsightHistory: 24 * time.Hour, MetricSamples: 30 * 24 * time.Hour}, now, logger)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.InsightHistory)
	assert.Equal(t, int64(1), result.MetricSamples)

	count, err := repos.Insights.CountSince(ctx, "pricing", now.Add(-100*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Zero durations leave tables alone
	result, err = repos.Prune(ctx, RetentionPolicy{}, now.Add(1000*time.Hour), logger)
	require.NoError(t, err)
	assert.Zero(t, result.InsightHistory)
	assert.Zero(t, result.MetricSamples)
}
