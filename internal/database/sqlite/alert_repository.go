package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/rm-alert-engine/internal/core/alerts"
)

// AlertRepository implements alerts.Repository on SQLite. Timestamps are
// stored as unix milliseconds.
type AlertRepository struct {
	db  *sqlx.DB
	log *logrus.Logger
}

func NewAlertRepository(db *sqlx.DB, log *logrus.Logger) *AlertRepository {
	return &AlertRepository{
		db:  db,
		log: log,
	}
}

type alertRow struct {
	ID             string          `db:"id"`
	Key            string          `db:"alert_key"`
	MetricName     sql.NullString  `db:"metric_name"`
	Category       string          `db:"category"`
	Severity       string          `db:"severity"`
	State          string          `db:"state"`
	Title          string          `db:"title"`
	Description    string          `db:"description"`
	Recommendation sql.NullString  `db:"recommendation"`
	CurrentValue   sql.NullFloat64 `db:"current_value"`
	Threshold      sql.NullFloat64 `db:"threshold"`
	ProducerID     sql.NullString  `db:"producer_id"`
	RouteID        sql.NullString  `db:"route_id"`
	Confidence     sql.NullFloat64 `db:"confidence"`
	CreatedAt      int64           `db:"created_at"`
	UpdatedAt      int64           `db:"updated_at"`
	LastFiredAt    sql.NullInt64   `db:"last_fired_at"`
	AcknowledgedAt sql.NullInt64   `db:"acknowledged_at"`
	AcknowledgedBy sql.NullString  `db:"acknowledged_by"`
	EscalatedAt    sql.NullInt64   `db:"escalated_at"`
	ResolvedAt     sql.NullInt64   `db:"resolved_at"`
	ResolvedBy     sql.NullString  `db:"resolved_by"`
	Resolution     sql.NullString  `db:"resolution"`
}

const alertColumns = `id, alert_key, metric_name, category, severity, state, title, description,
	recommendation, current_value, threshold, producer_id, route_id, confidence, created_at,
	updated_at, last_fired_at, acknowledged_at, acknowledged_by, escalated_at, resolved_at,
	resolved_by, resolution`

func (r *AlertRepository) Create(ctx context.Context, alert *alerts.Alert) error {
	query := `INSERT INTO alerts (` + alertColumns + `) VALUES (
		:id, :alert_key, :metric_name, :category, :severity, :state, :title, :description,
		:recommendation, :current_value, :threshold, :producer_id, :route_id, :confidence, :created_at,
		:updated_at, :last_fired_at, :acknowledged_at, :acknowledged_by, :escalated_at, :resolved_at,
		:resolved_by, :resolution)`

	if _, err := r.db.NamedExecContext(ctx, query, toAlertRow(alert)); err != nil {
		r.log.WithError(err).WithField("alert_id", alert.ID).Error("Failed to create alert")
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

// Update upserts alert. A row that is already resolved is left untouched, so
// a late write of an earlier transition cannot reopen it.
func (r *AlertRepository) Update(ctx context.Context, alert *alerts.Alert) error {
	query := `INSERT INTO alerts (` + alertColumns + `) VALUES (
		:id, :alert_key, :metric_name, :category, :severity, :state, :title, :description,
		:recommendation, :current_value, :threshold, :producer_id, :route_id, :confidence, :created_at,
		:updated_at, :last_fired_at, :acknowledged_at, :acknowledged_by, :escalated_at, :resolved_at,
		:resolved_by, :resolution)
		ON CONFLICT (id) DO UPDATE SET
			alert_key = excluded.alert_key, metric_name = excluded.metric_name,
			category = excluded.category, severity = excluded.severity, state = excluded.state,
			title = excluded.title, description = excluded.description,
			recommendation = excluded.recommendation, current_value = excluded.current_value,
			threshold = excluded.threshold, producer_id = excluded.producer_id,
			route_id = excluded.route_id, confidence = excluded.confidence,
			updated_at = excluded.updated_at, last_fired_at = excluded.last_fired_at,
			acknowledged_at = excluded.acknowledged_at, acknowledged_by = excluded.acknowledged_by,
			escalated_at = excluded.escalated_at, resolved_at = excluded.resolved_at,
			resolved_by = excluded.resolved_by, resolution = excluded.resolution
		WHERE alerts.state <> 'resolved'`

	if _, err := r.db.NamedExecContext(ctx, query, toAlertRow(alert)); err != nil {
		r.log.WithError(err).WithField("alert_id", alert.ID).Error("Failed to update alert")
		return fmt.Errorf("failed to update alert: %w", err)
	}
	return nil
}

func (r *AlertRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM alerts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete alert: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return alerts.ErrAlertNotFound
	}
	return nil
}

// GetByID returns one alert, or alerts.ErrAlertNotFound
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*alerts.Alert, error) {
	var row alertRow
	err := r.db.GetContext(ctx, &row, `SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, alerts.ErrAlertNotFound
		}
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return row.toAlert(), nil
}

func (r *AlertRepository) List(ctx context.Context, filter alerts.ListFilter) ([]*alerts.Alert, error) {
	var (
		where []string
		args  []interface{}
	)

	if len(filter.States) > 0 {
		placeholders := make([]string, len(filter.States))
		for i, s := range filter.States {
			placeholders[i] = "?"
			args = append(args, string(s))
		}
		where = append(where, "state IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.ResolvedBefore != nil {
		where = append(where, "resolved_at IS NOT NULL AND resolved_at < ?")
		args = append(args, filter.ResolvedBefore.UnixMilli())
	}

	query := `SELECT ` + alertColumns + ` FROM alerts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	var rows []alertRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.log.WithError(err).Error("Failed to list alerts")
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}

	result := make([]*alerts.Alert, len(rows))
	for i := range rows {
		result[i] = rows[i].toAlert()
	}
	return result, nil
}

func toAlertRow(a *alerts.Alert) alertRow {
	return alertRow{
		ID:             a.ID,
		Key:            a.Key,
		MetricName:     nullString(a.MetricName),
		Category:       a.Category,
		Severity:       string(a.Severity),
		State:          string(a.State),
		Title:          a.Title,
		Description:    a.Description,
		Recommendation: nullString(a.Recommendation),
		CurrentValue:   nullFloat(a.CurrentValue),
		Threshold:      nullFloat(a.Threshold),
		ProducerID:     nullString(a.ProducerID),
		RouteID:        nullString(a.RouteID),
		Confidence:     nullFloat(a.Confidence),
		CreatedAt:      a.CreatedAt.UnixMilli(),
		UpdatedAt:      a.UpdatedAt.UnixMilli(),
		LastFiredAt:    nullMillis(nonZero(a.LastFiredAt)),
		AcknowledgedAt: nullMillis(a.AcknowledgedAt),
		AcknowledgedBy: nullString(a.AcknowledgedBy),
		EscalatedAt:    nullMillis(a.EscalatedAt),
		ResolvedAt:     nullMillis(a.ResolvedAt),
		ResolvedBy:     nullString(a.ResolvedBy),
		Resolution:     nullString(a.Resolution),
	}
}

func (row alertRow) toAlert() *alerts.Alert {
	a := &alerts.Alert{
		ID:             row.ID,
		Key:            row.Key,
		MetricName:     row.MetricName.String,
		Category:       row.Category,
		Severity:       alerts.Severity(row.Severity),
		State:          alerts.State(row.State),
		Title:          row.Title,
		Description:    row.Description,
		Recommendation: row.Recommendation.String,
		CurrentValue:   floatPtr(row.CurrentValue),
		Threshold:      floatPtr(row.Threshold),
		ProducerID:     row.ProducerID.String,
		RouteID:        row.RouteID.String,
		Confidence:     floatPtr(row.Confidence),
		CreatedAt:      fromMillis(row.CreatedAt),
		UpdatedAt:      fromMillis(row.UpdatedAt),
		AcknowledgedAt: timePtr(row.AcknowledgedAt),
		AcknowledgedBy: row.AcknowledgedBy.String,
		EscalatedAt:    timePtr(row.EscalatedAt),
		ResolvedAt:     timePtr(row.ResolvedAt),
		ResolvedBy:     row.ResolvedBy.String,
		Resolution:     row.Resolution.String,
	}
	if row.LastFiredAt.Valid {
		a.LastFiredAt = fromMillis(row.LastFiredAt.Int64)
	}
	return a
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nonZero(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
