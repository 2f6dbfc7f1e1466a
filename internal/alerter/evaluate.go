// Package alerter evaluates metric samples against thresholds and fans the
// results out to observers.
package alerter

import (
	"github.com/darshan-rambhia/fleetmon/internal/model"
)

// Thresholds holds the numeric ceilings for alert rules. It is built once at
// startup and passed by value.
type Thresholds struct {
	CPU          float64 // percent
	Memory       float64 // percent
	ResponseTime float64 // milliseconds
}

// DefaultThresholds returns sensible alert defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{CPU: 80, Memory: 85, ResponseTime: 1000}
}

// Evaluate returns the alert candidates a metric triggers. Each rule is
// checked independently and a numeric rule fires only when the value is
// strictly greater than its ceiling. A Down status always yields a Critical
// alert. CreatedAt is the metric timestamp, so equal inputs give equal output.
func Evaluate(m model.Metric, t Thresholds) []model.Alert {
	var alerts []model.Alert

	warn := func(metricType string, value, threshold float64) {
		alerts = append(alerts, model.Alert{
			ServerID:   m.ServerID,
			MetricType: metricType,
			Value:      value,
			Threshold:  threshold,
			Severity:   model.SeverityWarning,
			CreatedAt:  m.Timestamp,
		})
	}

	if m.CPUUsage > t.CPU {
		warn(model.AlertTypeCPU, m.CPUUsage, t.CPU)
	}
	if m.MemoryUsage > t.Memory {
		warn(model.AlertTypeMemory, m.MemoryUsage, t.Memory)
	}
	if m.ResponseTime > t.ResponseTime {
		warn(model.AlertTypeResponseTime, m.ResponseTime, t.ResponseTime)
	}
	if m.Status == model.StatusDown {
		alerts = append(alerts, model.Alert{
			ServerID:   m.ServerID,
			MetricType: model.AlertTypeStatus,
			Value:      0,
			Threshold:  1,
			Severity:   model.SeverityCritical,
			CreatedAt:  m.Timestamp,
		})
	}

	return alerts
}
