package report

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/darshan-rambhia/fleetmon/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	metrics := []model.Metric{
		{CPUUsage: 10, MemoryUsage: 40, ResponseTime: 100},
		{CPUUsage: 20, MemoryUsage: 50, ResponseTime: 200},
		{CPUUsage: 30, MemoryUsage: 60, ResponseTime: 300},
	}
	assert.Equal(t, Summary{AvgCPU: 20, AvgMemory: 50, AvgResponseTime: 200}, Summarize(metrics))
}

func TestSummarize_EmptyWindow(t *testing.T) {
	assert.Equal(t, Summary{}, Summarize(nil))
}

func TestArtifactName(t *testing.T) {
	at := time.Date(2026, 3, 1, 14, 5, 9, 0, time.UTC)
	assert.Equal(t, "report_3_17_20260301140509_deadbeef.json",
		ArtifactName(3, 17, at, "deadbeef-1234-5678-9abc-def012345678"))
}

func TestBuildArtifact_EmptyMetricsIsAnArray(t *testing.T) {
	a := BuildArtifact(model.Report{ID: 1, ServerID: 2}, nil, time.Now())
	b, err := json.Marshal(a)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"metrics":[]`)
	assert.Contains(t, string(b), `"metricsCount":0`)
}

func TestDirWriter_Write(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	w := NewDirWriter(dir)
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	a := BuildArtifact(model.Report{ID: 5, ServerID: 2}, []model.Metric{
		{CPUUsage: 12.5, MemoryUsage: 40, ResponseTime: 80, Status: model.StatusDown, Timestamp: at},
	}, at)

	name, err := w.Write(context.Background(), a)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^report_2_5_20260301000000_[0-9a-f]{8}\.json$`), name)

	raw, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, float64(5), doc["reportId"])
	assert.Equal(t, float64(2), doc["serverId"])
	assert.Equal(t, float64(1), doc["metricsCount"])
	summary := doc["summary"].(map[string]any)
	assert.Equal(t, 12.5, summary["avgCpu"])
	rows := doc["metrics"].([]any)
	require.Len(t, rows, 1)
	assert.Equal(t, "Down", rows[0].(map[string]any)["status"])

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestDirWriter_UniqueNames(t *testing.T) {
	w := NewDirWriter(t.TempDir())
	a := BuildArtifact(model.Report{ID: 1, ServerID: 1}, nil, time.Now())

	first, err := w.Write(context.Background(), a)
	require.NoError(t, err)
	second, err := w.Write(context.Background(), a)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestDirWriter_UnwritableDir(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	_, err := NewDirWriter(filepath.Join(blocker, "reports")).Write(context.Background(), Artifact{})
	assert.ErrorContains(t, err, "creating reports directory")
}
