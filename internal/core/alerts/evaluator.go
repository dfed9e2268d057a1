package alerts

import (
	"fmt"
	"strconv"
)

// Status is the result of evaluating a metric value against its thresholds
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// Severity maps a non-healthy status to an alert severity
func (s Status) Severity() Severity {
	if s == StatusCritical {
		return SeverityCritical
	}
	return SeverityWarning
}

// Evaluate classifies value against spec. Critical is checked before warning.
// It depends only on its arguments.
func Evaluate(value float64, spec ThresholdSpec) Status {
	switch spec.Direction {
	case LowerIsBetter:
		if value > spec.Critical {
			return StatusCritical
		}
		if value > spec.Warning {
			return StatusWarning
		}
	default:
		if value < spec.Critical {
			return StatusCritical
		}
		if value < spec.Warning {
			return StatusWarning
		}
	}
	return StatusHealthy
}

// describe builds the human-facing text of a threshold alert
func describe(spec ThresholdSpec, status Status, value float64) (title, description, recommendation string) {
	name := spec.DisplayName()
	severity := status.Severity()

	title = name + " Warning"
	if severity == SeverityCritical {
		title = name + " Critical"
	}

	description = fmt.Sprintf("%s is %s%s, past the %s threshold of %s%s (target %s%s)",
		name,
		formatValue(value), spec.Unit,
		severity,
		formatValue(spec.ThresholdFor(severity)), spec.Unit,
		formatValue(spec.Target), spec.Unit,
	)

	recommendation = spec.Recommendation
	if recommendation == "" {
		movement := "drop"
		if spec.Direction == LowerIsBetter {
			movement = "rise"
		}
		recommendation = fmt.Sprintf("Investigate the %s in %s and bring it back toward %s%s.",
			movement, name, formatValue(spec.Target), spec.Unit)
	}
	return title, description, recommendation
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
