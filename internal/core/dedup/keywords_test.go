package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeywords(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		max      int
		expected []string
	}{
		{"lowercases and strips punctuation", "BCN route: Booking Pace 40%!", 10, []string{"route", "booking", "pace"}},
		{"hyphens join words", "Year-over-year load-factor", 10, []string{"yearoveryear", "loadfactor"}},
		{"apostrophes join words", "O'Hare yield isn't flat", 10, []string{"ohare", "yield", "isnt", "flat"}},
		{"digit groups and symbols", "revenue rose $1,200 (3.5%) yesterday", 10, []string{"revenue", "rose", "1200", "yesterday"}},
		{"mixed punctuation", "Year-over-year O'Hare revenue rose $1,200 yesterday", 10, []string{"yearoveryear", "ohare", "revenue", "rose", "1200", "yesterday"}},
		{"punctuation only word vanishes", "fares -- ... dropped", 10, []string{"fares", "dropped"}},
		{"drops short words", "the red fox ran over lazy dogs", 10, []string{"over", "lazy", "dogs"}},
		{"unique in order", "demand demand yield Demand yield", 10, []string{"demand", "yield"}},
		{"respects max", "alpha bravo charlie delta echo", 3, []string{"alpha", "bravo", "charlie"}},
		{"counts runes not bytes", "señor über straße", 10, []string{"señor", "über", "straße"}},
		{"empty text", "", 10, []string{}},
		{"zero max", "alpha bravo", 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Keywords(tt.text, tt.max))
		})
	}
}

func TestJaccard(t *testing.T) {
	assert.Equal(t, 0.0, Jaccard(nil, nil))
	assert.Equal(t, 1.0, Jaccard([]string{"a", "b"}, []string{"b", "a"}))
	assert.Equal(t, 0.0, Jaccard([]string{"a"}, []string{"b"}))
	assert.InDelta(t, 2.0/3.0, Jaccard([]string{"a", "b", "c"}, []string{"a", "b"}), 1e-9)
	assert.InDelta(t, 0.7, Jaccard(
		[]string{"1", "2", "3", "4", "5", "6", "7", "8"},
		[]string{"1", "2", "3", "4", "5", "6", "7", "9", "10"},
	), 1e-9)
}

func TestMemoryHistory_RecentAndPrune(t *testing.T) {
	h := NewMemoryHistory()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		assert.NoError(t, h.Record(ctx, Record{ID: string(rune('a' + i)), ProducerID: "p", CreatedAt: base.Add(time.Duration(i) * time.Hour)}))
	}
	assert.NoError(t, h.Record(ctx, Record{ID: "other", ProducerID: "q", CreatedAt: base}))

	recent, err := h.Recent(ctx, "p", base.Add(time.Hour), 2)
	assert.NoError(t, err)
	assert.Len(t, recent, 2)
	assert.Equal(t, "e", recent[0].ID)
	assert.Equal(t, "d", recent[1].ID)

	n, err := h.CountSince(ctx, "p", base.Add(2*time.Hour))
	assert.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.Equal(t, 3, h.Prune(base.Add(2*time.Hour)))
	assert.Equal(t, 3, h.Len())
}
