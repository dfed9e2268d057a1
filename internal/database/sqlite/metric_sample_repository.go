package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/rm-alert-engine/internal/core/metricsource"
)

// MetricSample is one recorded metric observation
type MetricSample struct {
	Metric     string    `json:"metric" binding:"required"`
	Value      float64   `json:"value"`
	RecordedAt time.Time `json:"recorded_at"`
	Source     string    `json:"source,omitempty"`
}

// MetricSampleRepository stores metric samples and serves them as a
// metricsource.Source
type MetricSampleRepository struct {
	db  *sqlx.DB
	log *logrus.Logger
}

func NewMetricSampleRepository(db *sqlx.DB, log *logrus.Logger) *MetricSampleRepository {
	return &MetricSampleRepository{
		db:  db,
		log: log,
	}
}

// Record stores samples in one transaction
func (r *MetricSampleRepository) Record(ctx context.Context, samples ...MetricSample) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `INSERT INTO metric_samples (metric, value, recorded_at, source) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range samples {
		if _, err := stmt.ExecContext(ctx, s.Metric, s.Value, s.RecordedAt.UnixMilli(), nullString(s.Source)); err != nil {
			r.log.WithError(err).WithField("metric", s.Metric).Error("Failed to record metric sample")
			return fmt.Errorf("failed to record metric sample: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit metric samples: %w", err)
	}
	return nil
}

// Value returns the average of metric over r
func (r *MetricSampleRepository) Value(ctx context.Context, metric string, rng metricsource.DateRange) (float64, error) {
	var avg sql.NullFloat64
	query := `SELECT AVG(value) FROM metric_samples WHERE metric = ? AND recorded_at >= ? AND recorded_at < ?`
	if err := r.db.GetContext(ctx, &avg, query, metric, rng.From.UnixMilli(), rng.To.UnixMilli()); err != nil {
		return 0, fmt.Errorf("failed to read metric %s: %w", metric, err)
	}
	if !avg.Valid {
		return 0, metricsource.ErrNoData
	}
	return avg.Float64, nil
}

// Latest returns the most recent sample of metric
func (r *MetricSampleRepository) Latest(ctx context.Context, metric string) (*MetricSample, error) {
	var row struct {
		Value      float64        `db:"value"`
		RecordedAt int64          `db:"recorded_at"`
		Source     sql.NullString `db:"source"`
	}
	query := `SELECT value, recorded_at, source FROM metric_samples WHERE metric = ? ORDER BY recorded_at DESC LIMIT 1`
	if err := r.db.GetContext(ctx, &row, query, metric); err != nil {
		if err == sql.ErrNoRows {
			return nil, metricsource.ErrNoData
		}
		return nil, fmt.Errorf("failed to read latest %s: %w", metric, err)
	}
	return &MetricSample{
		Metric:     metric,
		Value:      row.Value,
		RecordedAt: fromMillis(row.RecordedAt),
		Source:     row.Source.String,
	}, nil
}

// Prune deletes samples recorded before cutoff
func (r *MetricSampleRepository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM metric_samples WHERE recorded_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune metric samples: %w", err)
	}
	return result.RowsAffected()
}
