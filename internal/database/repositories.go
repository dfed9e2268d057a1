package database

import (
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/rm-alert-engine/internal/database/sqlite"
)

// Repositories holds all repository instances
type Repositories struct {
	Alerts   *sqlite.AlertRepository
	Insights *sqlite.InsightHistoryRepository
	Samples  *sqlite.MetricSampleRepository
}

// NewRepositories creates all repository instances
func NewRepositories(db *sqlx.DB, logger *logrus.Logger) *Repositories {
	return &Repositories{
		Alerts:   sqlite.NewAlertRepository(db, logger),
		Insights: sqlite.NewInsightHistoryRepository(db, logger),
		Samples:  sqlite.NewMetricSampleRepository(db, logger),
	}
}
