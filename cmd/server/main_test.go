package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/frostdev-ops/rm-alert-engine/internal/core/dedup"
)

func TestRetentionWindow(t *testing.T) {
	cfg := dedup.Config{HoursBack: 24 * time.Hour}
	assert.Equal(t, 24*time.Hour, retentionWindow(cfg))

	cfg.FuzzyWindow = 36 * time.Hour
	cfg.RateLimit.Window = time.Hour
	assert.Equal(t, 36*time.Hour, retentionWindow(cfg))

	cfg.RateLimit.Window = 72 * time.Hour
	assert.Equal(t, 72*time.Hour, retentionWindow(cfg))
}
