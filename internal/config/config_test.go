package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFrom_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "server:\n  port: 8080\n")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 60, cfg.Monitoring.AlertCooldownMinutes)
	assert.Equal(t, 30, cfg.Monitoring.EscalationDelayMinutes)
	assert.True(t, cfg.Monitoring.EscalationEnabled)
	assert.Equal(t, 24, cfg.Dedup.HoursBack)
	assert.Equal(t, 0.7, cfg.Dedup.SimilarityThreshold)
	assert.Equal(t, "reject", cfg.Dedup.RateLimit.Mode)
}

func TestLoadFrom_ThresholdsFile(t *testing.T) {
	dir := t.TempDir()
	thresholds := writeFile(t, dir, "thresholds.yaml", `
thresholds:
  - metric: system_availability
    unit: "%"
    target: 99.9
    warning: 99.5
    critical: 99.0
    direction: higherIsBetter
  - metric: nightshift_processing_time
    target: 120
    warning: 150
    critical: 180
    direction: lowerIsBetter
    default_value: 130
`)
	path := writeFile(t, dir, "config.yaml", "monitoring:\n  thresholds_file: "+thresholds+"\n")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	require.Len(t, cfg.Monitoring.Thresholds, 2)
	assert.Equal(t, "system_availability", cfg.Monitoring.Thresholds[0].Metric)
	require.NotNil(t, cfg.Monitoring.Thresholds[1].DefaultValue)
	assert.Equal(t, 130.0, *cfg.Monitoring.Thresholds[1].DefaultValue)
}

func TestLoadFrom_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
database:
  driver: oracle
dedup:
  similarity_threshold: 1.5
  rate_limit:
    mode: ignore
`)

	_, err := LoadFrom(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.driver")
	assert.Contains(t, err.Error(), "dedup.similarity_threshold")
	assert.Contains(t, err.Error(), "dedup.rate_limit.mode")
}

func TestParseThresholds_RejectsUnknownFields(t *testing.T) {
	_, err := ParseThresholds([]byte("thresholds:\n  - metric: a\n    critcal: 3\n"))
	assert.Error(t, err)

	_, err = ParseThresholds([]byte("thresholds: []\n"))
	assert.Error(t, err)
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, 5*time.Second, ParseDuration("5s", time.Minute))
	assert.Equal(t, time.Minute, ParseDuration("", time.Minute))
	assert.Equal(t, time.Minute, ParseDuration("soon", time.Minute))
	assert.Equal(t, time.Minute, ParseDuration("-1s", time.Minute))
}

func TestDefaultThresholds(t *testing.T) {
	seen := map[string]bool{}
	for _, th := range DefaultThresholds() {
		assert.False(t, seen[th.Metric], th.Metric)
		seen[th.Metric] = true
	}
	assert.True(t, seen["system_availability"])
	assert.True(t, seen["insight_accuracy_rate"])
}

func TestLoadFrom_Redis(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "redis:\n  enabled: true\n  history_ttl: never\n")

	_, err := LoadFrom(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis.history_ttl")

	path = writeFile(t, dir, "config.yaml", "redis:\n  enabled: true\n")
	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.Redis.Host)
	assert.Equal(t, 6379, cfg.Redis.Port)
	assert.Equal(t, "rmalert:", cfg.Redis.KeyPrefix)
	assert.Equal(t, "48h", cfg.Redis.HistoryTTL)
}

func TestLoadFrom_RedisTTLCoversDedupLookBack(t *testing.T) {
	dir := t.TempDir()

	path := writeFile(t, dir, "config.yaml", "redis:\n  enabled: true\n  history_ttl: 12h\n")
	_, err := LoadFrom(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dedup look-back of 24h0m0s")

	path = writeFile(t, dir, "config.yaml", `redis:
  enabled: true
  history_ttl: 48h
dedup:
  fuzzy_window_hours: 72
`)
	_, err = LoadFrom(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "72h0m0s")

	path = writeFile(t, dir, "config.yaml", "redis:\n  enabled: true\n  history_ttl: 24h\n")
	_, err = LoadFrom(path)
	assert.NoError(t, err)
}

func TestDedupConfig_LookBack(t *testing.T) {
	d := DedupConfig{HoursBack: 24, RateLimit: RateLimitConfig{WindowMinutes: 60}}
	assert.Equal(t, 24*time.Hour, d.LookBack())

	d.FuzzyWindowHours = 36
	assert.Equal(t, 36*time.Hour, d.LookBack())

	d.RateLimit.WindowMinutes = 3000
	assert.Equal(t, 50*time.Hour, d.LookBack())
}
