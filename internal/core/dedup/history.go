package dedup

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Record is an accepted insight as remembered by the filter
type Record struct {
	ID         string    `json:"id" db:"id"`
	ProducerID string    `json:"producer_id" db:"producer_id"`
	Title      string    `json:"title" db:"title"`
	TitleKey   string    `json:"title_key" db:"title_key"`
	Keywords   []string  `json:"keywords"`
	CreatedAt  time.Time `json:"created_at"`
}

// History stores accepted insights for duplicate detection
type History interface {
	Record(ctx context.Context, rec Record) error
	// CountExact counts records of producerID with titleKey created at or after since
	CountExact(ctx context.Context, producerID, titleKey string, since time.Time) (int, error)
	// Recent returns up to limit records of producerID created at or after since, newest first
	Recent(ctx context.Context, producerID string, since time.Time, limit int) ([]Record, error)
	// CountSince counts records of producerID created at or after since
	CountSince(ctx context.Context, producerID string, since time.Time) (int, error)
}

// MemoryHistory is an in-process History
type MemoryHistory struct {
	mu      sync.RWMutex
	records []Record
}

// NewMemoryHistory creates an empty in-memory history
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{}
}

func (h *MemoryHistory) Record(ctx context.Context, rec Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec.Keywords = append([]string(nil), rec.Keywords...)
	h.records = append(h.records, rec)
	return nil
}

func (h *MemoryHistory) CountExact(ctx context.Context, producerID, titleKey string, since time.Time) (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, r := range h.records {
		if r.ProducerID == producerID && r.TitleKey == titleKey && !r.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (h *MemoryHistory) Recent(ctx context.Context, producerID string, since time.Time, limit int) ([]Record, error) {
	h.mu.RLock()
	var matched []Record
	for _, r := range h.records {
		if r.ProducerID == producerID && !r.CreatedAt.Before(since) {
			matched = append(matched, r)
		}
	}
	h.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (h *MemoryHistory) CountSince(ctx context.Context, producerID string, since time.Time) (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, r := range h.records {
		if r.ProducerID == producerID && !r.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// Prune drops records created before cutoff and returns how many were removed
func (h *MemoryHistory) Prune(cutoff time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	kept := h.records[:0]
	for _, r := range h.records {
		if !r.CreatedAt.Before(cutoff) {
			kept = append(kept, r)
		}
	}
	removed := len(h.records) - len(kept)
	h.records = kept
	return removed
}

// Len returns the number of stored records
func (h *MemoryHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.records)
}
