package store

import (
	"context"
	"fmt"

	"github.com/darshan-rambhia/fleetmon/internal/model"
)

// Session stages metric, alert and server-status writes and flushes them in
// a single transaction on Commit. A Session is not safe for concurrent use.
type Session struct {
	store    *Store
	metrics  []*model.Metric
	alerts   []*model.Alert
	statuses []statusChange
}

type statusChange struct {
	serverID int64
	status   model.ServerStatus
}

// Begin starts a new unit of work against the store.
func (s *Store) Begin() *Session {
	return &Session{store: s}
}

// AddMetric stages a metric. Its ID is assigned on Commit.
func (u *Session) AddMetric(m *model.Metric) {
	u.metrics = append(u.metrics, m)
}

// AddAlert stages an alert. Its ID is assigned on Commit.
func (u *Session) AddAlert(a *model.Alert) {
	u.alerts = append(u.alerts, a)
}

// SetServerStatus stages a server status update.
func (u *Session) SetServerStatus(serverID int64, status model.ServerStatus) {
	u.statuses = append(u.statuses, statusChange{serverID: serverID, status: status})
}

// Pending returns the number of staged writes.
func (u *Session) Pending() int {
	return len(u.metrics) + len(u.alerts) + len(u.statuses)
}

// Commit writes every staged change in one transaction. On failure nothing
// is written and the staged changes are kept for the next Commit.
func (u *Session) Commit(ctx context.Context) error {
	if u.Pending() == 0 {
		return nil
	}

	tx, err := u.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	metricIDs := make([]int64, len(u.metrics))
	for i, m := range u.metrics {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO metrics (server_id, cpu_usage, memory_usage, disk_usage, response_time, status, ts)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			m.ServerID, m.CPUUsage, m.MemoryUsage, m.DiskUsage, m.ResponseTime, m.Status, toUnix(m.Timestamp),
		)
		if err != nil {
			return fmt.Errorf("inserting metric for server %d: %w", m.ServerID, err)
		}
		if metricIDs[i], err = res.LastInsertId(); err != nil {
			return fmt.Errorf("reading metric id: %w", err)
		}
	}

	alertIDs := make([]int64, len(u.alerts))
	for i, a := range u.alerts {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO alerts (server_id, metric_type, value, threshold, severity, created_at, resolved_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			a.ServerID, a.MetricType, a.Value, a.Threshold, a.Severity, toUnix(a.CreatedAt), toNullUnix(a.ResolvedAt),
		)
		if err != nil {
			return fmt.Errorf("inserting %s alert for server %d: %w", a.MetricType, a.ServerID, err)
		}
		if alertIDs[i], err = res.LastInsertId(); err != nil {
			return fmt.Errorf("reading alert id: %w", err)
		}
	}

	for _, c := range u.statuses {
		if _, err := tx.ExecContext(ctx, `UPDATE servers SET status = ? WHERE id = ?`, c.status, c.serverID); err != nil {
			return fmt.Errorf("updating status of server %d: %w", c.serverID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	for i, m := range u.metrics {
		m.ID = metricIDs[i]
	}
	for i, a := range u.alerts {
		a.ID = alertIDs[i]
	}
	u.metrics, u.alerts, u.statuses = nil, nil, nil
	return nil
}
