package archive

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostdev-ops/rm-alert-engine/internal/core/alerts"
)

type memoryStore struct {
	alerts    []*alerts.Alert
	deleted   []string
	deleteErr error
}

func (s *memoryStore) List(ctx context.Context, filter alerts.ListFilter) ([]*alerts.Alert, error) {
	var out []*alerts.Alert
	for _, a := range s.alerts {
		if a.State != alerts.StateResolved || a.ResolvedAt == nil {
			continue
		}
		if filter.ResolvedBefore != nil && !a.ResolvedAt.Before(*filter.ResolvedBefore) {
			continue
		}
		out = append(out, a.Clone())
	}
	return out, nil
}

func (s *memoryStore) Delete(ctx context.Context, id string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deleted = append(s.deleted, id)
	return nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func resolvedAt(ts time.Time) *time.Time { return &ts }

func newStore() *memoryStore {
	now := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	return &memoryStore{alerts: []*alerts.Alert{
		{ID: "old-1", Title: "Forecast Accuracy Critical", State: alerts.StateResolved, ResolvedAt: resolvedAt(now.AddDate(0, 0, -40))},
		{ID: "old-2", Title: "Data Freshness Warning", State: alerts.StateResolved, ResolvedAt: resolvedAt(now.AddDate(0, 0, -31))},
		{ID: "recent", Title: "Load Factor Drop", State: alerts.StateResolved, ResolvedAt: resolvedAt(now.AddDate(0, 0, -2))},
		{ID: "open", Title: "System Availability", State: alerts.StateRaised},
	}}
}

func TestExportAndRead(t *testing.T) {
	store := newStore()
	cutoff := time.Date(2024, 5, 4, 0, 0, 0, 0, time.UTC)

	var buf bytes.Buffer
	result, err := Export(context.Background(), store, cutoff, &buf, false, quietLogger())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Archived)
	assert.Equal(t, 2, result.Deleted)
	assert.Equal(t, int64(buf.Len()), result.BytesWritten)
	assert.ElementsMatch(t, []string{"old-1", "old-2"}, store.deleted)

	var titles []string
	n, err := Read(&buf, func(a *alerts.Alert) error {
		titles = append(titles, a.Title)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{"Forecast Accuracy Critical", "Data Freshness Warning"}, titles)
}

func TestExport_DryRun(t *testing.T) {
	store := newStore()

	var buf bytes.Buffer
	result, err := Export(context.Background(), store, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), &buf, true, quietLogger())
	require.NoError(t, err)

	assert.Equal(t, 3, result.Archived)
	assert.Zero(t, result.Deleted)
	assert.Empty(t, store.deleted)
	assert.Positive(t, buf.Len())
}

func TestExport_DeleteFailure(t *testing.T) {
	store := newStore()
	store.deleteErr = errors.New("database is locked")

	var buf bytes.Buffer
	result, err := Export(context.Background(), store, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), &buf, false, quietLogger())
	require.Error(t, err)
	assert.Equal(t, 3, result.Archived)
	assert.Zero(t, result.Deleted)
}

func TestExport_Empty(t *testing.T) {
	var buf bytes.Buffer
	result, err := Export(context.Background(), &memoryStore{}, time.Now(), &buf, false, quietLogger())
	require.NoError(t, err)
	assert.Zero(t, result.Archived)

	n, err := Read(&buf, func(*alerts.Alert) error { return nil })
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRead_Corrupt(t *testing.T) {
	_, err := Read(bytes.NewReader([]byte("not zstd")), func(*alerts.Alert) error { return nil })
	assert.Error(t, err)
}
