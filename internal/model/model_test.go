package model

import (
	"encoding/json"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerStatus_String(t *testing.T) {
	tests := []struct {
		s    ServerStatus
		want string
	}{
		{StatusUnknown, "Unknown"},
		{StatusUp, "Up"},
		{StatusDown, "Down"},
		{StatusMaintenance, "Maintenance"},
		{ServerStatus(42), "Unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.s.String())
	}
}

func TestServerStatus_JSON(t *testing.T) {
	b, err := json.Marshal(Metric{Status: StatusDown})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"status":"Down"`)

	var m Metric
	require.NoError(t, json.Unmarshal([]byte(`{"status":"up"}`), &m))
	assert.Equal(t, StatusUp, m.Status)

	err = json.Unmarshal([]byte(`{"status":"sideways"}`), &m)
	assert.Error(t, err)
}

func TestParseReportStatus(t *testing.T) {
	for _, s := range []ReportStatus{ReportPending, ReportProcessing, ReportCompleted, ReportFailed} {
		got, err := ParseReportStatus(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	got, err := ParseReportStatus("completed")
	require.NoError(t, err)
	assert.Equal(t, ReportCompleted, got)

	_, err = ParseReportStatus("done")
	assert.Error(t, err)
	assert.Equal(t, "ReportStatus(9)", ReportStatus(9).String())
}

func TestReportStatus_Terminal(t *testing.T) {
	assert.False(t, ReportPending.Terminal())
	assert.False(t, ReportProcessing.Terminal())
	assert.True(t, ReportCompleted.Terminal())
	assert.True(t, ReportFailed.Terminal())
}

func TestReport_Transition(t *testing.T) {
	all := []ReportStatus{ReportPending, ReportProcessing, ReportCompleted, ReportFailed}
	allowed := map[ReportStatus][]ReportStatus{
		ReportPending:    {ReportProcessing},
		ReportProcessing: {ReportProcessing, ReportCompleted, ReportFailed},
	}

	for _, from := range all {
		for _, to := range all {
			r := Report{Status: from}
			err := r.Transition(to)
			if slices.Contains(allowed[from], to) {
				assert.NoError(t, err, "%s -> %s", from, to)
				assert.Equal(t, to, r.Status)
			} else {
				assert.ErrorIs(t, err, ErrInvalidTransition, "%s -> %s", from, to)
				assert.Equal(t, from, r.Status, "status unchanged on rejected transition")
			}
		}
	}
}

func TestReport_JSONUsesStatusNames(t *testing.T) {
	b, err := json.Marshal(Report{ID: 1, Status: ReportCompleted})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"status":"Completed"`)
	assert.NotContains(t, string(b), "completed_at")

	var back Report
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, ReportCompleted, back.Status)
}
