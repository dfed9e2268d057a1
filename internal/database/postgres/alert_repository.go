// Package postgres stores alerts in PostgreSQL through pgx
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/rm-alert-engine/internal/core/alerts"
)

const schema = `
CREATE TABLE IF NOT EXISTS alerts (
    id TEXT PRIMARY KEY,
    alert_key TEXT NOT NULL,
    metric_name TEXT,
    category TEXT NOT NULL,
    severity TEXT NOT NULL,
    state TEXT NOT NULL,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    recommendation TEXT,
    current_value DOUBLE PRECISION,
    threshold DOUBLE PRECISION,
    producer_id TEXT,
    route_id TEXT,
    confidence DOUBLE PRECISION,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    last_fired_at TIMESTAMPTZ,
    acknowledged_at TIMESTAMPTZ,
    acknowledged_by TEXT,
    escalated_at TIMESTAMPTZ,
    resolved_at TIMESTAMPTZ,
    resolved_by TEXT,
    resolution TEXT
);
CREATE INDEX IF NOT EXISTS idx_alerts_state ON alerts(state);
CREATE INDEX IF NOT EXISTS idx_alerts_resolved_at ON alerts(resolved_at);
`

const columns = `id, alert_key, metric_name, category, severity, state, title, description,
	recommendation, current_value, threshold, producer_id, route_id, confidence, created_at,
	updated_at, last_fired_at, acknowledged_at, acknowledged_by, escalated_at, resolved_at,
	resolved_by, resolution`

// AlertRepository implements alerts.Repository on PostgreSQL
type AlertRepository struct {
	pool *pgxpool.Pool
	log  *logrus.Logger
}

// Connect opens a pool for dsn and verifies it
func Connect(ctx context.Context, dsn string, maxConns int) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	cfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return pool, nil
}

func NewAlertRepository(pool *pgxpool.Pool, log *logrus.Logger) *AlertRepository {
	return &AlertRepository{pool: pool, log: log}
}

// EnsureSchema creates the alerts table when missing
func (r *AlertRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure alerts schema: %w", err)
	}
	return nil
}

func (r *AlertRepository) Create(ctx context.Context, a *alerts.Alert) error {
	query := `INSERT INTO alerts (` + columns + `) VALUES
		($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`

	if _, err := r.pool.Exec(ctx, query, values(a)...); err != nil {
		r.log.WithError(err).WithField("alert_id", a.ID).Error("Failed to create alert")
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

// Update upserts a. Resolved rows are never rewritten.
func (r *AlertRepository) Update(ctx context.Context, a *alerts.Alert) error {
	query := `INSERT INTO alerts (` + columns + `) VALUES
		($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
		ON CONFLICT (id) DO UPDATE SET
			alert_key = EXCLUDED.alert_key, metric_name = EXCLUDED.metric_name,
			category = EXCLUDED.category, severity = EXCLUDED.severity, state = EXCLUDED.state,
			title = EXCLUDED.title, description = EXCLUDED.description,
			recommendation = EXCLUDED.recommendation, current_value = EXCLUDED.current_value,
			threshold = EXCLUDED.threshold, producer_id = EXCLUDED.producer_id,
			route_id = EXCLUDED.route_id, confidence = EXCLUDED.confidence,
			updated_at = EXCLUDED.updated_at, last_fired_at = EXCLUDED.last_fired_at,
			acknowledged_at = EXCLUDED.acknowledged_at, acknowledged_by = EXCLUDED.acknowledged_by,
			escalated_at = EXCLUDED.escalated_at, resolved_at = EXCLUDED.resolved_at,
			resolved_by = EXCLUDED.resolved_by, resolution = EXCLUDED.resolution
		WHERE alerts.state <> 'resolved'`

	if _, err := r.pool.Exec(ctx, query, values(a)...); err != nil {
		r.log.WithError(err).WithField("alert_id", a.ID).Error("Failed to update alert")
		return fmt.Errorf("failed to update alert: %w", err)
	}
	return nil
}

func (r *AlertRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM alerts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return alerts.ErrAlertNotFound
	}
	return nil
}

// GetByID returns one alert, or alerts.ErrAlertNotFound
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*alerts.Alert, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+columns+` FROM alerts WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	a, err := pgx.CollectExactlyOneRow(rows, scanAlert)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, alerts.ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return a, nil
}

func (r *AlertRepository) List(ctx context.Context, filter alerts.ListFilter) ([]*alerts.Alert, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(filter.States) > 0 {
		states := make([]string, len(filter.States))
		for i, s := range filter.States {
			states[i] = string(s)
		}
		where = append(where, "state = ANY("+arg(states)+")")
	}
	if filter.Category != "" {
		where = append(where, "category = "+arg(filter.Category))
	}
	if filter.ResolvedBefore != nil {
		where = append(where, "resolved_at < "+arg(*filter.ResolvedBefore))
	}

	query := `SELECT ` + columns + ` FROM alerts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		r.log.WithError(err).Error("Failed to list alerts")
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	result, err := pgx.CollectRows(rows, scanAlert)
	if err != nil {
		return nil, fmt.Errorf("failed to scan alerts: %w", err)
	}
	return result, nil
}

func values(a *alerts.Alert) []interface{} {
	var lastFired *time.Time
	if !a.LastFiredAt.IsZero() {
		t := a.LastFiredAt
		lastFired = &t
	}
	return []interface{}{
		a.ID, a.Key, nullable(a.MetricName), a.Category, string(a.Severity), string(a.State),
		a.Title, a.Description, nullable(a.Recommendation), a.CurrentValue, a.Threshold,
		nullable(a.ProducerID), nullable(a.RouteID), a.Confidence, a.CreatedAt, a.UpdatedAt,
		lastFired, a.AcknowledgedAt, nullable(a.AcknowledgedBy), a.EscalatedAt, a.ResolvedAt,
		nullable(a.ResolvedBy), nullable(a.Resolution),
	}
}

func scanAlert(row pgx.CollectableRow) (*alerts.Alert, error) {
	var (
		a                                               alerts.Alert
		metricName, recommendation, producerID, routeID *string
		acknowledgedBy, resolvedBy, resolution          *string
		severity, state                                 string
		lastFired                                       *time.Time
	)
	err := row.Scan(
		&a.ID, &a.Key, &metricName, &a.Category, &severity, &state, &a.Title, &a.Description,
		&recommendation, &a.CurrentValue, &a.Threshold, &producerID, &routeID, &a.Confidence,
		&a.CreatedAt, &a.UpdatedAt, &lastFired, &a.AcknowledgedAt, &acknowledgedBy,
		&a.EscalatedAt, &a.ResolvedAt, &resolvedBy, &resolution,
	)
	if err != nil {
		return nil, err
	}
	a.Severity = alerts.Severity(severity)
	a.State = alerts.State(state)
	a.MetricName = deref(metricName)
	a.Recommendation = deref(recommendation)
	a.ProducerID = deref(producerID)
	a.RouteID = deref(routeID)
	a.AcknowledgedBy = deref(acknowledgedBy)
	a.ResolvedBy = deref(resolvedBy)
	a.Resolution = deref(resolution)
	if lastFired != nil {
		a.LastFiredAt = *lastFired
	}
	return &a, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
