package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostdev-ops/rm-alert-engine/internal/config"
	"github.com/frostdev-ops/rm-alert-engine/internal/core/dedup"
)

func TestRedisHistory_Keys(t *testing.T) {
	h := NewRedisHistoryWithClient(redis.NewClient(&redis.Options{Addr: "localhost:0"}), "rmalert:", 0, logrus.New())
	defer h.Close()

	assert.Equal(t, "rmalert:insights:forecast_bias", h.producerKey("forecast_bias"))
	assert.Equal(t, "rmalert:insight_titles:forecast_bias:demand spike", h.titleKey("forecast_bias", "demand spike"))
	assert.Equal(t, 48*time.Hour, h.ttl)
}

func TestScore(t *testing.T) {
	at := time.Date(2024, 6, 3, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, "1717380000000", score(at))
}

func TestNewRedisHistory_Disabled(t *testing.T) {
	_, err := NewRedisHistory(config.RedisConfig{}, logrus.New())
	assert.Error(t, err)
}

func TestRedisHistory_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("Skipping Redis integration test. Set REDIS_ADDR to run.")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	prefix := "rmalert-test:" + uuid.NewString() + ":"
	h := NewRedisHistoryWithClient(client, prefix, time.Hour, logrus.New())
	defer h.Close()

	ctx := context.Background()
	require.NoError(t, h.Ping(ctx))

	now := time.Now().UTC().Truncate(time.Millisecond)
	records := []dedup.Record{
		{ID: "r1", ProducerID: "p", Title: "Demand spike LHR", TitleKey: "demand spike lhr", Keywords: []string{"demand", "spike"}, CreatedAt: now.Add(-3 * time.Hour)},
		{ID: "r2", ProducerID: "p", Title: "Demand spike LHR", TitleKey: "demand spike lhr", CreatedAt: now.Add(-30 * time.Minute)},
		{ID: "r3", ProducerID: "p", Title: "Fare drop JFK", TitleKey: "fare drop jfk", CreatedAt: now.Add(-10 * time.Minute)},
		{ID: "r4", ProducerID: "other", Title: "Demand spike LHR", TitleKey: "demand spike lhr", CreatedAt: now},
	}
	for _, rec := range records[:3] {
		require.NoError(t, h.Record(ctx, rec))
	}
	require.NoError(t, h.Record(ctx, records[3]))
	defer client.Del(ctx,
		h.producerKey("p"), h.producerKey("other"),
		h.titleKey("p", "demand spike lhr"), h.titleKey("p", "fare drop jfk"), h.titleKey("other", "demand spike lhr"))

	// r1 is older than the TTL relative to the latest write for p
	n, err := h.CountExact(ctx, "p", "demand spike lhr", now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = h.CountSince(ctx, "p", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	recent, err := h.Recent(ctx, "p", now.Add(-time.Hour), 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "r3", recent[0].ID)
	assert.True(t, recent[0].CreatedAt.Equal(records[2].CreatedAt))
}
