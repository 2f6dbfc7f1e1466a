// Package report turns a server's metric history into JSON report artifacts
// and schedules their generation.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/darshan-rambhia/fleetmon/internal/model"
	"github.com/google/uuid"
)

// Artifact is the document written for a report.
type Artifact struct {
	ReportID     int64            `json:"reportId"`
	ServerID     int64            `json:"serverId"`
	GeneratedAt  time.Time        `json:"generatedAt"`
	MetricsCount int              `json:"metricsCount"`
	Summary      Summary          `json:"summary"`
	Metrics      []ArtifactMetric `json:"metrics"`
}

// Summary holds window means. All are 0 for an empty window.
type Summary struct {
	AvgCPU          float64 `json:"avgCpu"`
	AvgMemory       float64 `json:"avgMemory"`
	AvgResponseTime float64 `json:"avgResponseTime"`
}

// ArtifactMetric is one sample in the artifact.
type ArtifactMetric struct {
	Timestamp    time.Time          `json:"timestamp"`
	CPUUsage     float64            `json:"cpuUsage"`
	MemoryUsage  float64            `json:"memoryUsage"`
	ResponseTime float64            `json:"responseTime"`
	Status       model.ServerStatus `json:"status"`
}

// Summarize computes the arithmetic means of a window.
func Summarize(metrics []model.Metric) Summary {
	if len(metrics) == 0 {
		return Summary{}
	}
	var s Summary
	for _, m := range metrics {
		s.AvgCPU += m.CPUUsage
		s.AvgMemory += m.MemoryUsage
		s.AvgResponseTime += m.ResponseTime
	}
	n := float64(len(metrics))
	s.AvgCPU /= n
	s.AvgMemory /= n
	s.AvgResponseTime /= n
	return s
}

// BuildArtifact assembles the document for r from its window.
func BuildArtifact(r model.Report, metrics []model.Metric, generatedAt time.Time) Artifact {
	rows := make([]ArtifactMetric, len(metrics))
	for i, m := range metrics {
		rows[i] = ArtifactMetric{
			Timestamp:    m.Timestamp,
			CPUUsage:     m.CPUUsage,
			MemoryUsage:  m.MemoryUsage,
			ResponseTime: m.ResponseTime,
			Status:       m.Status,
		}
	}
	return Artifact{
		ReportID:     r.ID,
		ServerID:     r.ServerID,
		GeneratedAt:  generatedAt.UTC(),
		MetricsCount: len(metrics),
		Summary:      Summarize(metrics),
		Metrics:      rows,
	}
}

// ArtifactName returns the file name for an artifact. The random suffix
// keeps two runs within the same second apart.
func ArtifactName(serverID, reportID int64, at time.Time, suffix string) string {
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return fmt.Sprintf("report_%d_%d_%s_%s.json", serverID, reportID, at.UTC().Format("20060102150405"), suffix)
}

// Writer persists artifacts and returns a reference to the result.
type Writer interface {
	Write(ctx context.Context, a Artifact) (string, error)
}

// DirWriter writes artifacts as indented JSON files into a directory.
type DirWriter struct {
	dir    string
	suffix func() string
}

var _ Writer = (*DirWriter)(nil)

// NewDirWriter creates a writer for dir. The directory is created on first
// write.
func NewDirWriter(dir string) *DirWriter {
	return &DirWriter{dir: dir, suffix: uuid.NewString}
}

// Dir returns the artifact directory.
func (w *DirWriter) Dir() string { return w.dir }

// Write stores a and returns the file name relative to Dir. The file
// appears atomically: readers never see a partial document.
func (w *DirWriter) Write(ctx context.Context, a Artifact) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating reports directory: %w", err)
	}

	tmp, err := os.CreateTemp(w.dir, ".report-*.tmp")
	if err != nil {
		return "", fmt.Errorf("creating report file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after rename

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(a); err != nil {
		tmp.Close()
		return "", fmt.Errorf("encoding report %d: %w", a.ReportID, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("writing report %d: %w", a.ReportID, err)
	}

	name := ArtifactName(a.ServerID, a.ReportID, a.GeneratedAt, w.suffix())
	if err := os.Rename(tmp.Name(), filepath.Join(w.dir, name)); err != nil {
		return "", fmt.Errorf("publishing report %d: %w", a.ReportID, err)
	}
	return name, nil
}
