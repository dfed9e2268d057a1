package database

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// RetentionPolicy says how long dedup history and metric samples are kept
type RetentionPolicy struct {
	InsightHistory time.Duration
	MetricSamples  time.Duration
}

// RetentionResult counts the rows removed by one prune run
type RetentionResult struct {
	InsightHistory int64 `json:"insight_history"`
	MetricSamples  int64 `json:"metric_samples"`
}

// Prune deletes expired dedup history and metric samples. A zero duration
// keeps that table untouched. Both tables are attempted even if the first
// fails; the first error is returned.
func (r *Repositories) Prune(ctx context.Context, policy RetentionPolicy, now time.Time, logger *logrus.Logger) (RetentionResult, error) {
	var (
		result   RetentionResult
		firstErr error
	)

	if policy.InsightHistory > 0 {
		n, err := r.Insights.Prune(ctx, now.Add(-policy.InsightHistory))
		if err != nil {
			firstErr = err
			logger.WithError(err).Warn("Failed to prune insight history")
		}
		result.InsightHistory = n
	}

	if policy.MetricSamples > 0 {
		n, err := r.Samples.Prune(ctx, now.Add(-policy.MetricSamples))
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			logger.WithError(err).Warn("Failed to prune metric samples")
		}
		result.MetricSamples = n
	}

	if result.InsightHistory > 0 || result.MetricSamples > 0 {
		logger.WithFields(logrus.Fields{
			"insight_history": result.InsightHistory,
			"metric_samples":  result.MetricSamples,
		}).Info("Pruned expired records")
	}

	return result, firstErr
}
