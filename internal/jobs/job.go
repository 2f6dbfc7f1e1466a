// Package jobs queues background work and runs it on a bounded pool of
// workers.
package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrQueueClosed is returned by a queue after Close.
	ErrQueueClosed = errors.New("queue closed")
	// ErrUnknownJob is returned for payloads or variants no handler knows.
	ErrUnknownJob = errors.New("unknown job")
)

// Kind names a job variant on the wire.
type Kind string

const (
	KindCollectMetrics       Kind = "collect_metrics"
	KindGenerateReport       Kind = "generate_report"
	KindScheduleDailyReports Kind = "schedule_daily_reports"
)

// Job is one of CollectMetrics, GenerateReport or ScheduleDailyReports.
type Job interface {
	Kind() Kind
	isJob()
}

// CollectMetrics runs one collection cycle.
type CollectMetrics struct{}

// GenerateReport builds the artifact for one report.
type GenerateReport struct {
	ReportID int64
}

// ScheduleDailyReports creates and enqueues a daily report per server.
type ScheduleDailyReports struct{}

func (CollectMetrics) Kind() Kind       { return KindCollectMetrics }
func (GenerateReport) Kind() Kind       { return KindGenerateReport }
func (ScheduleDailyReports) Kind() Kind { return KindScheduleDailyReports }

func (CollectMetrics) isJob()       {}
func (GenerateReport) isJob()       {}
func (ScheduleDailyReports) isJob() {}

type wireJob struct {
	Kind     Kind  `json:"kind"`
	ReportID int64 `json:"report_id,omitempty"`
}

// Encode serializes a job for durable queues.
func Encode(j Job) ([]byte, error) {
	w := wireJob{Kind: j.Kind()}
	if g, ok := j.(GenerateReport); ok {
		w.ReportID = g.ReportID
	}
	b, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("encoding %s job: %w", j.Kind(), err)
	}
	return b, nil
}

// Decode parses a payload written by Encode.
func Decode(b []byte) (Job, error) {
	var w wireJob
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownJob, err)
	}
	switch w.Kind {
	case KindCollectMetrics:
		return CollectMetrics{}, nil
	case KindScheduleDailyReports:
		return ScheduleDailyReports{}, nil
	case KindGenerateReport:
		if w.ReportID <= 0 {
			return nil, fmt.Errorf("%w: %s without report id", ErrUnknownJob, w.Kind)
		}
		return GenerateReport{ReportID: w.ReportID}, nil
	default:
		return nil, fmt.Errorf("%w: kind %q", ErrUnknownJob, w.Kind)
	}
}

// ParseKind maps the short names used by the CLI and HTTP API to a job.
func ParseKind(name string) (Job, error) {
	switch name {
	case "collect", string(KindCollectMetrics):
		return CollectMetrics{}, nil
	case "schedule-reports", string(KindScheduleDailyReports):
		return ScheduleDailyReports{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownJob, name)
	}
}
