package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/rm-alert-engine/internal/core/dedup"
)

// InsightHistoryRepository implements dedup.History on SQLite
type InsightHistoryRepository struct {
	db  *sqlx.DB
	log *logrus.Logger
}

func NewInsightHistoryRepository(db *sqlx.DB, log *logrus.Logger) *InsightHistoryRepository {
	return &InsightHistoryRepository{
		db:  db,
		log: log,
	}
}

type insightRow struct {
	ID         string `db:"id"`
	ProducerID string `db:"producer_id"`
	Title      string `db:"title"`
	TitleKey   string `db:"title_key"`
	Keywords   string `db:"keywords"`
	CreatedAt  int64  `db:"created_at"`
}

func (r *InsightHistoryRepository) Record(ctx context.Context, rec dedup.Record) error {
	keywords, err := json.Marshal(rec.Keywords)
	if err != nil {
		return fmt.Errorf("failed to encode keywords: %w", err)
	}
	if rec.Keywords == nil {
		keywords = []byte("[]")
	}

	query := `INSERT INTO insight_history (id, producer_id, title, title_key, keywords, created_at)
			  VALUES (?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query, rec.ID, rec.ProducerID, rec.Title, rec.TitleKey, string(keywords), rec.CreatedAt.UnixMilli())
	if err != nil {
		r.log.WithError(err).WithField("producer_id", rec.ProducerID).Error("Failed to record insight")
		return fmt.Errorf("failed to record insight: %w", err)
	}
	return nil
}

func (r *InsightHistoryRepository) CountExact(ctx context.Context, producerID, titleKey string, since time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM insight_history WHERE producer_id = ? AND title_key = ? AND created_at >= ?`
	if err := r.db.GetContext(ctx, &count, query, producerID, titleKey, since.UnixMilli()); err != nil {
		return 0, fmt.Errorf("failed to count insights: %w", err)
	}
	return count, nil
}

func (r *InsightHistoryRepository) Recent(ctx context.Context, producerID string, since time.Time, limit int) ([]dedup.Record, error) {
	query := `SELECT id, producer_id, title, title_key, keywords, created_at FROM insight_history
			  WHERE producer_id = ? AND created_at >= ? ORDER BY created_at DESC`
	args := []interface{}{producerID, since.UnixMilli()}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var rows []insightRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list recent insights: %w", err)
	}

	records := make([]dedup.Record, 0, len(rows))
	for _, row := range rows {
		var keywords []string
		if err := json.Unmarshal([]byte(row.Keywords), &keywords); err != nil {
			r.log.WithError(err).WithField("id", row.ID).Warn("Skipping insight with unreadable keywords")
			continue
		}
		records = append(records, dedup.Record{
			ID:         row.ID,
			ProducerID: row.ProducerID,
			Title:      row.Title,
			TitleKey:   row.TitleKey,
			Keywords:   keywords,
			CreatedAt:  fromMillis(row.CreatedAt),
		})
	}
	return records, nil
}

func (r *InsightHistoryRepository) CountSince(ctx context.Context, producerID string, since time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM insight_history WHERE producer_id = ? AND created_at >= ?`
	if err := r.db.GetContext(ctx, &count, query, producerID, since.UnixMilli()); err != nil {
		return 0, fmt.Errorf("failed to count insights: %w", err)
	}
	return count, nil
}

// Prune deletes history older than cutoff
func (r *InsightHistoryRepository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM insight_history WHERE created_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune insight history: %w", err)
	}
	return result.RowsAffected()
}
