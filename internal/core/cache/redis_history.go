package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/rm-alert-engine/internal/config"
	"github.com/frostdev-ops/rm-alert-engine/internal/core/dedup"
)

// RedisHistory is a dedup.History shared by every engine instance pointed at
// the same Redis database.
//
// Each producer owns a sorted set of encoded records scored by creation time
// in milliseconds. A second sorted set per (producer, title key) holds record
// ids only, so exact duplicate counts never decode payloads.
type RedisHistory struct {
	client    redis.UniversalClient
	logger    *logrus.Logger
	keyPrefix string
	ttl       time.Duration
}

var _ dedup.History = (*RedisHistory)(nil)

// NewRedisHistory connects to Redis and verifies the connection
func NewRedisHistory(cfg config.RedisConfig, logger *logrus.Logger) (*RedisHistory, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("redis is not enabled in configuration")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	ttl := config.ParseDuration(cfg.HistoryTTL, 48*time.Hour)
	logger.WithFields(logrus.Fields{
		"host":        cfg.Host,
		"port":        cfg.Port,
		"db":          cfg.DB,
		"key_prefix":  cfg.KeyPrefix,
		"history_ttl": ttl,
	}).Info("Redis dedup history initialized")

	return NewRedisHistoryWithClient(rdb, cfg.KeyPrefix, ttl, logger), nil
}

// NewRedisHistoryWithClient wraps an existing client
func NewRedisHistoryWithClient(client redis.UniversalClient, keyPrefix string, ttl time.Duration, logger *logrus.Logger) *RedisHistory {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &RedisHistory{
		client:    client,
		logger:    logger,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}
}

func (r *RedisHistory) producerKey(producerID string) string {
	return r.keyPrefix + "insights:" + producerID
}

func (r *RedisHistory) titleKey(producerID, titleKey string) string {
	return r.keyPrefix + "insight_titles:" + producerID + ":" + titleKey
}

func score(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// Record stores rec and trims entries older than the history TTL
func (r *RedisHistory) Record(ctx context.Context, rec dedup.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode insight record: %w", err)
	}

	pk := r.producerKey(rec.ProducerID)
	tk := r.titleKey(rec.ProducerID, rec.TitleKey)
	at := float64(rec.CreatedAt.UnixMilli())
	cutoff := "(" + score(rec.CreatedAt.Add(-r.ttl))

	pipe := r.client.TxPipeline()
	pipe.ZAdd(ctx, pk, redis.Z{Score: at, Member: payload})
	pipe.ZAdd(ctx, tk, redis.Z{Score: at, Member: rec.ID})
	pipe.ZRemRangeByScore(ctx, pk, "-inf", cutoff)
	pipe.ZRemRangeByScore(ctx, tk, "-inf", cutoff)
	pipe.Expire(ctx, pk, r.ttl)
	pipe.Expire(ctx, tk, r.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record insight %s: %w", rec.ID, err)
	}
	return nil
}

func (r *RedisHistory) CountExact(ctx context.Context, producerID, titleKey string, since time.Time) (int, error) {
	n, err := r.client.ZCount(ctx, r.titleKey(producerID, titleKey), score(since), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count exact duplicates: %w", err)
	}
	return int(n), nil
}

func (r *RedisHistory) Recent(ctx context.Context, producerID string, since time.Time, limit int) ([]dedup.Record, error) {
	by := &redis.ZRangeBy{Min: score(since), Max: "+inf"}
	if limit > 0 {
		by.Count = int64(limit)
	}

	members, err := r.client.ZRevRangeByScore(ctx, r.producerKey(producerID), by).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load recent insights: %w", err)
	}

	records := make([]dedup.Record, 0, len(members))
	for _, member := range members {
		var rec dedup.Record
		if err := json.Unmarshal([]byte(member), &rec); err != nil {
			r.logger.WithError(err).WithField("producer_id", producerID).Warn("Skipping undecodable insight record")
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (r *RedisHistory) CountSince(ctx context.Context, producerID string, since time.Time) (int, error) {
	n, err := r.client.ZCount(ctx, r.producerKey(producerID), score(since), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count insights: %w", err)
	}
	return int(n), nil
}

// Ping checks the Redis connection
func (r *RedisHistory) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the underlying client
func (r *RedisHistory) Close() error {
	return r.client.Close()
}
