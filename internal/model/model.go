// Package model defines all shared domain types for fleetmon.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServerStatus is the health of a tracked server.
type ServerStatus int

// Values match the persisted integers; Unknown is the zero value.
const (
	StatusUnknown     ServerStatus = 0
	StatusUp          ServerStatus = 1
	StatusDown        ServerStatus = 2
	StatusMaintenance ServerStatus = 3
)

func (s ServerStatus) String() string {
	switch s {
	case StatusUp:
		return "Up"
	case StatusDown:
		return "Down"
	case StatusMaintenance:
		return "Maintenance"
	default:
		return "Unknown"
	}
}

// MarshalText encodes the status by name so JSON artifacts and websocket
// payloads stay readable.
func (s ServerStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *ServerStatus) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "up":
		*s = StatusUp
	case "down":
		*s = StatusDown
	case "maintenance":
		*s = StatusMaintenance
	case "unknown", "":
		*s = StatusUnknown
	default:
		return fmt.Errorf("unknown server status %q", string(b))
	}
	return nil
}

// Server is a tracked machine.
type Server struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Address     string       `json:"address,omitempty"`
	Status      ServerStatus `json:"status"`
	Description string       `json:"description,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Metric is one health sample for one server. Immutable once persisted.
type Metric struct {
	ID           int64        `json:"id"`
	ServerID     int64        `json:"server_id"`
	CPUUsage     float64      `json:"cpu_usage"`
	MemoryUsage  float64      `json:"memory_usage"`
	DiskUsage    float64      `json:"disk_usage"`
	ResponseTime float64      `json:"response_time"` // milliseconds
	Status       ServerStatus `json:"status"`
	Timestamp    time.Time    `json:"timestamp"`
}

// Alert metric-type tags.
const (
	AlertTypeCPU          = "CPU"
	AlertTypeMemory       = "Memory"
	AlertTypeResponseTime = "ResponseTime"
	AlertTypeStatus       = "Status"
)

// Alert severities.
const (
	SeverityWarning  = "Warning"
	SeverityCritical = "Critical"
)

// Alert records a threshold breach. ResolvedAt is only ever set by an operator.
type Alert struct {
	ID         int64      `json:"id"`
	ServerID   int64      `json:"server_id"`
	MetricType string     `json:"metric_type"`
	Value      float64    `json:"value"`
	Threshold  float64    `json:"threshold"`
	Severity   string     `json:"severity"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// ReportStatus is the lifecycle state of a report.
type ReportStatus int

const (
	ReportPending ReportStatus = iota
	ReportProcessing
	ReportCompleted
	ReportFailed
)

func (s ReportStatus) String() string {
	switch s {
	case ReportPending:
		return "Pending"
	case ReportProcessing:
		return "Processing"
	case ReportCompleted:
		return "Completed"
	case ReportFailed:
		return "Failed"
	default:
		return fmt.Sprintf("ReportStatus(%d)", int(s))
	}
}

func (s ReportStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *ReportStatus) UnmarshalText(b []byte) error {
	v, err := ParseReportStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseReportStatus accepts a status name, case-insensitively.
func ParseReportStatus(v string) (ReportStatus, error) {
	for _, s := range []ReportStatus{ReportPending, ReportProcessing, ReportCompleted, ReportFailed} {
		if strings.EqualFold(v, s.String()) {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown report status %q", v)
}

// Terminal reports accept no further transitions.
func (s ReportStatus) Terminal() bool {
	return s == ReportCompleted || s == ReportFailed
}

// ErrInvalidTransition is returned when a report would move backwards or out
// of a terminal state.
var ErrInvalidTransition = errors.New("invalid report status transition")

// Report is a request for a historical summary of one server's metrics.
type Report struct {
	ID           int64        `json:"id"`
	ServerID     int64        `json:"server_id"`
	Name         string       `json:"name"`
	StartTime    time.Time    `json:"start_time"`
	EndTime      time.Time    `json:"end_time"`
	Status       ReportStatus `json:"status"`
	FilePath     string       `json:"file_path,omitempty"`
	ErrorMessage string       `json:"error_message,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
}

// Transition moves the report to next. Pending may go to Processing;
// Processing may go to Completed or Failed, or restart Processing when a
// queue redelivers the job. Terminal states never change.
func (r *Report) Transition(next ReportStatus) error {
	ok := false
	switch r.Status {
	case ReportPending:
		ok = next == ReportProcessing
	case ReportProcessing:
		ok = next == ReportProcessing || next == ReportCompleted || next == ReportFailed
	}
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, next)
	}
	r.Status = next
	return nil
}

// Notification is a structured message for external providers.
type Notification struct {
	Kind      string            `json:"kind"`     // "alert", "report"
	Severity  string            `json:"severity"` // "info", "warning", "critical"
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	ServerID  int64             `json:"server_id,omitempty"`
	Recipient string            `json:"recipient,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}
