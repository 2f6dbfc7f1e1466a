package jobs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		job  Job
		want string
	}{
		{CollectMetrics{}, `{"kind":"collect_metrics"}`},
		{ScheduleDailyReports{}, `{"kind":"schedule_daily_reports"}`},
		{GenerateReport{ReportID: 17}, `{"kind":"generate_report","report_id":17}`},
	}
	for _, tt := range tests {
		t.Run(string(tt.job.Kind()), func(t *testing.T) {
			b, err := Encode(tt.job)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(b))

			back, err := Decode(b)
			require.NoError(t, err)
			assert.Equal(t, tt.job, back)
		})
	}
}

func TestDecode_Rejects(t *testing.T) {
	for name, payload := range map[string]string{
		"not json":          `{`,
		"unknown kind":      `{"kind":"reboot_everything"}`,
		"missing kind":      `{}`,
		"report without id": `{"kind":"generate_report"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(payload))
			assert.ErrorIs(t, err, ErrUnknownJob)
		})
	}
}

func TestParseKind(t *testing.T) {
	j, err := ParseKind("collect")
	require.NoError(t, err)
	assert.Equal(t, CollectMetrics{}, j)

	j, err = ParseKind("schedule-reports")
	require.NoError(t, err)
	assert.Equal(t, ScheduleDailyReports{}, j)

	_, err = ParseKind("generate_report")
	assert.ErrorIs(t, err, ErrUnknownJob)
}
