package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/darshan-rambhia/fleetmon/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t testing.TB) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedServer(t testing.TB, s *Store, name string) model.Server {
	t.Helper()
	srv := model.Server{Name: name, Address: "10.0.0.1", Status: model.StatusUnknown}
	require.NoError(t, s.CreateServer(context.Background(), &srv))
	return srv
}

func TestNew(t *testing.T) {
	s := newTestStore(t)
	assert.NotNil(t, s)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestNew_InvalidPath(t *testing.T) {
	_, err := New("/nonexistent/dir/test.db")
	assert.Error(t, err)
}

func TestCreateAndGetServer(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	srv := model.Server{Name: "web-1", Address: "10.0.0.5", Description: "frontend"}
	require.NoError(t, s.CreateServer(ctx, &srv))
	assert.NotZero(t, srv.ID)

	got, err := s.GetServer(ctx, srv.ID)
	require.NoError(t, err)
	assert.Equal(t, "web-1", got.Name)
	assert.Equal(t, "10.0.0.5", got.Address)
	assert.Equal(t, "frontend", got.Description)
	assert.Equal(t, model.StatusUnknown, got.Status)
}

func TestGetServer_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetServer(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertServerByName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.UpsertServerByName(ctx, "db-1", "10.0.0.9", "primary")
	require.NoError(t, err)

	second, err := s.UpsertServerByName(ctx, "db-1", "10.0.0.10", "primary, moved")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "10.0.0.10", second.Address)
	assert.Equal(t, "primary, moved", second.Description)

	servers, err := s.ListServers(ctx)
	require.NoError(t, err)
	assert.Len(t, servers, 1)
}

func TestListServers_Ordered(t *testing.T) {
	s := newTestStore(t)
	a := seedServer(t, s, "a")
	b := seedServer(t, s, "b")
	c := seedServer(t, s, "c")

	servers, err := s.ListServers(context.Background())
	require.NoError(t, err)
	require.Len(t, servers, 3)
	assert.Equal(t, []int64{a.ID, b.ID, c.ID}, []int64{servers[0].ID, servers[1].ID, servers[2].ID})
}

func TestSession_CommitWritesEverything(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	srv := seedServer(t, s, "web-1")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	u := s.Begin()
	m := &model.Metric{ServerID: srv.ID, CPUUsage: 42.5, MemoryUsage: 50, DiskUsage: 60, ResponseTime: 12, Status: model.StatusDown, Timestamp: now}
	a := &model.Alert{ServerID: srv.ID, MetricType: model.AlertTypeStatus, Value: 0, Threshold: 1, Severity: model.SeverityCritical, CreatedAt: now}
	u.AddMetric(m)
	u.AddAlert(a)
	u.SetServerStatus(srv.ID, model.StatusDown)
	assert.Equal(t, 3, u.Pending())

	require.NoError(t, u.Commit(ctx))
	assert.Equal(t, 0, u.Pending())
	assert.NotZero(t, m.ID)
	assert.NotZero(t, a.ID)

	got, err := s.GetServer(ctx, srv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDown, got.Status)

	metrics, err := s.MetricsInRange(ctx, srv.ID, now, now)
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	assert.Equal(t, 42.5, metrics[0].CPUUsage)
	assert.Equal(t, model.StatusDown, metrics[0].Status)
	assert.True(t, now.Equal(metrics[0].Timestamp))

	alerts, err := s.ListAlerts(ctx, true)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, model.AlertTypeStatus, alerts[0].MetricType)
	assert.Nil(t, alerts[0].ResolvedAt)
}

func TestSession_CommitEmptyIsNoop(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Begin().Commit(context.Background()))
}

func TestSession_FailedCommitKeepsPending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := s.Begin()
	// No server 999: the foreign key rejects the insert.
	u.AddMetric(&model.Metric{ServerID: 999, Timestamp: time.Now()})

	err := u.Commit(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, u.Pending())
}

func TestMetricsInRange_InclusiveAndOrdered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	srv := seedServer(t, s, "web-1")
	other := seedServer(t, s, "web-2")
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	u := s.Begin()
	// Inserted out of order on purpose.
	for _, off := range []time.Duration{2 * time.Hour, 0, time.Hour, 5 * time.Hour} {
		u.AddMetric(&model.Metric{ServerID: srv.ID, CPUUsage: off.Hours(), Timestamp: t0.Add(off)})
	}
	u.AddMetric(&model.Metric{ServerID: other.ID, Timestamp: t0.Add(time.Hour)})
	require.NoError(t, u.Commit(ctx))

	metrics, err := s.MetricsInRange(ctx, srv.ID, t0, t0.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, metrics, 3)
	assert.Equal(t, []float64{0, 1, 2}, []float64{metrics[0].CPUUsage, metrics[1].CPUUsage, metrics[2].CPUUsage})
}

func TestLatestMetricsAndHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := seedServer(t, s, "a")
	b := seedServer(t, s, "b")
	seedServer(t, s, "no-metrics")
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	u := s.Begin()
	for i := range 3 {
		u.AddMetric(&model.Metric{ServerID: a.ID, CPUUsage: float64(i), Timestamp: t0.Add(time.Duration(i) * time.Minute)})
	}
	u.AddMetric(&model.Metric{ServerID: b.ID, CPUUsage: 77, Timestamp: t0})
	require.NoError(t, u.Commit(ctx))

	latest, err := s.LatestMetrics(ctx)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, float64(2), latest[0].CPUUsage)
	assert.Equal(t, float64(77), latest[1].CPUUsage)

	history, err := s.MetricHistory(ctx, a.ID, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, float64(2), history[0].CPUUsage)
	assert.Equal(t, float64(1), history[1].CPUUsage)

	n, err := s.CountMetrics(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestReportLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	srv := seedServer(t, s, "web-1")
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	r := model.Report{ServerID: srv.ID, Name: "Daily", StartTime: start, EndTime: start.Add(24 * time.Hour)}
	require.NoError(t, s.CreateReport(ctx, &r))
	assert.NotZero(t, r.ID)

	got, err := s.GetReport(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReportPending, got.Status)
	assert.Nil(t, got.CompletedAt)
	assert.True(t, start.Equal(got.StartTime))

	done := start.Add(25 * time.Hour)
	got.Status = model.ReportFailed
	got.ErrorMessage = "disk full"
	got.CompletedAt = &done
	require.NoError(t, s.UpdateReport(ctx, &got))

	again, err := s.GetReport(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReportFailed, again.Status)
	assert.Equal(t, "disk full", again.ErrorMessage)
	require.NotNil(t, again.CompletedAt)
	assert.True(t, done.Equal(*again.CompletedAt))
}

func TestGetReport_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetReport(context.Background(), 7)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateReport_NotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdateReport(context.Background(), &model.Report{ID: 7})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListReports_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := seedServer(t, s, "a")
	b := seedServer(t, s, "b")

	for _, r := range []model.Report{
		{ServerID: a.ID, Name: "a1", Status: model.ReportPending},
		{ServerID: a.ID, Name: "a2", Status: model.ReportCompleted},
		{ServerID: b.ID, Name: "b1", Status: model.ReportCompleted},
	} {
		require.NoError(t, s.CreateReport(ctx, &r))
	}

	all, err := s.ListReports(ctx, 0, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byServer, err := s.ListReports(ctx, a.ID, nil)
	require.NoError(t, err)
	assert.Len(t, byServer, 2)

	completed := model.ReportCompleted
	both, err := s.ListReports(ctx, a.ID, &completed)
	require.NoError(t, err)
	require.Len(t, both, 1)
	assert.Equal(t, "a2", both[0].Name)
}
