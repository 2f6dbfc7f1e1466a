// Package store provides SQLite persistence for fleetmon.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/darshan-rambhia/fleetmon/internal/model"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a lookup by id matches no row.
var ErrNotFound = errors.New("not found")

// Store wraps a SQLite database for fleetmon data persistence.
type Store struct {
	db *sql.DB
}

// New opens or creates a SQLite database at the given path and runs migrations.
func New(dbPath string) (*Store, error) {
	dsn := "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", dbPath, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Timestamps are stored as unix nanoseconds.
func toUnix(t time.Time) int64 { return t.UTC().UnixNano() }

func fromUnix(ns int64) time.Time { return time.Unix(0, ns).UTC() }

func fromNullUnix(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromUnix(v.Int64)
	return &t
}

func toNullUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toUnix(*t), Valid: true}
}

type scanner interface {
	Scan(dest ...any) error
}

// --- servers ---

const serverColumns = `id, name, address, status, description, created_at`

func scanServer(row scanner) (model.Server, error) {
	var srv model.Server
	var created int64
	if err := row.Scan(&srv.ID, &srv.Name, &srv.Address, &srv.Status, &srv.Description, &created); err != nil {
		return model.Server{}, err
	}
	srv.CreatedAt = fromUnix(created)
	return srv, nil
}

// CreateServer inserts a server and sets its ID.
func (s *Store) CreateServer(ctx context.Context, srv *model.Server) error {
	if srv.CreatedAt.IsZero() {
		srv.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO servers (name, address, status, description, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		srv.Name, srv.Address, srv.Status, srv.Description, toUnix(srv.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting server %s: %w", srv.Name, err)
	}
	srv.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading server id: %w", err)
	}
	return nil
}

// UpsertServerByName registers a server from config, updating address and
// description when one with the same name already exists. Status is kept.
func (s *Store) UpsertServerByName(ctx context.Context, name, address, description string) (model.Server, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO servers (name, address, description, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			address = excluded.address,
			description = excluded.description`,
		name, address, description, toUnix(time.Now()),
	)
	if err != nil {
		return model.Server{}, fmt.Errorf("upserting server %s: %w", name, err)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+serverColumns+` FROM servers WHERE name = ?`, name)
	srv, err := scanServer(row)
	if err != nil {
		return model.Server{}, fmt.Errorf("reading server %s: %w", name, err)
	}
	return srv, nil
}

// GetServer returns a server by id, or ErrNotFound.
func (s *Store) GetServer(ctx context.Context, id int64) (model.Server, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+serverColumns+` FROM servers WHERE id = ?`, id)
	srv, err := scanServer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Server{}, fmt.Errorf("server %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Server{}, fmt.Errorf("querying server %d: %w", id, err)
	}
	return srv, nil
}

// ListServers returns every tracked server ordered by id.
func (s *Store) ListServers(ctx context.Context) ([]model.Server, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+serverColumns+` FROM servers ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying servers: %w", err)
	}
	defer rows.Close()

	var servers []model.Server
	for rows.Next() {
		srv, err := scanServer(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning server: %w", err)
		}
		servers = append(servers, srv)
	}
	return servers, rows.Err()
}

// --- metrics ---

const metricColumns = `id, server_id, cpu_usage, memory_usage, disk_usage, response_time, status, ts`

func scanMetrics(rows *sql.Rows) ([]model.Metric, error) {
	defer rows.Close()
	var metrics []model.Metric
	for rows.Next() {
		var m model.Metric
		var ts int64
		if err := rows.Scan(&m.ID, &m.ServerID, &m.CPUUsage, &m.MemoryUsage, &m.DiskUsage, &m.ResponseTime, &m.Status, &ts); err != nil {
			return nil, fmt.Errorf("scanning metric: %w", err)
		}
		m.Timestamp = fromUnix(ts)
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// MetricsInRange returns a server's metrics with start <= ts <= end, oldest first.
func (s *Store) MetricsInRange(ctx context.Context, serverID int64, start, end time.Time) ([]model.Metric, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+metricColumns+` FROM metrics
		WHERE server_id = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC, id ASC`,
		serverID, toUnix(start), toUnix(end))
	if err != nil {
		return nil, fmt.Errorf("querying metrics for server %d: %w", serverID, err)
	}
	return scanMetrics(rows)
}

// MetricHistory returns up to limit of a server's most recent metrics, newest first.
func (s *Store) MetricHistory(ctx context.Context, serverID int64, limit int) ([]model.Metric, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+metricColumns+` FROM metrics
		WHERE server_id = ?
		ORDER BY ts DESC, id DESC
		LIMIT ?`, serverID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying metric history for server %d: %w", serverID, err)
	}
	return scanMetrics(rows)
}

// LatestMetrics returns the newest metric of every server that has one.
func (s *Store) LatestMetrics(ctx context.Context) ([]model.Metric, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.server_id, m.cpu_usage, m.memory_usage, m.disk_usage, m.response_time, m.status, m.ts
		FROM metrics m
		WHERE m.id = (
			SELECT id FROM metrics
			WHERE server_id = m.server_id
			ORDER BY ts DESC, id DESC
			LIMIT 1
		)
		ORDER BY m.server_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying latest metrics: %w", err)
	}
	return scanMetrics(rows)
}

// CountMetrics returns the number of stored metrics for a server.
func (s *Store) CountMetrics(ctx context.Context, serverID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM metrics WHERE server_id = ?`, serverID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting metrics: %w", err)
	}
	return n, nil
}

// --- alerts ---

// ListAlerts returns alerts newest first. With onlyActive, resolved alerts
// are skipped.
func (s *Store) ListAlerts(ctx context.Context, onlyActive bool) ([]model.Alert, error) {
	query := `SELECT id, server_id, metric_type, value, threshold, severity, created_at, resolved_at FROM alerts`
	if onlyActive {
		query += ` WHERE resolved_at IS NULL`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying alerts: %w", err)
	}
	defer rows.Close()

	var alerts []model.Alert
	for rows.Next() {
		var a model.Alert
		var created int64
		var resolved sql.NullInt64
		if err := rows.Scan(&a.ID, &a.ServerID, &a.MetricType, &a.Value, &a.Threshold, &a.Severity, &created, &resolved); err != nil {
			return nil, fmt.Errorf("scanning alert: %w", err)
		}
		a.CreatedAt = fromUnix(created)
		a.ResolvedAt = fromNullUnix(resolved)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// --- reports ---

const reportColumns = `id, server_id, name, start_time, end_time, status, file_path, error_message, created_at, completed_at`

func scanReport(row scanner) (model.Report, error) {
	var r model.Report
	var start, end, created int64
	var completed sql.NullInt64
	if err := row.Scan(&r.ID, &r.ServerID, &r.Name, &start, &end, &r.Status, &r.FilePath, &r.ErrorMessage, &created, &completed); err != nil {
		return model.Report{}, err
	}
	r.StartTime = fromUnix(start)
	r.EndTime = fromUnix(end)
	r.CreatedAt = fromUnix(created)
	r.CompletedAt = fromNullUnix(completed)
	return r, nil
}

// CreateReport inserts a report and sets its ID.
func (s *Store) CreateReport(ctx context.Context, r *model.Report) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO reports (server_id, name, start_time, end_time, status, file_path, error_message, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ServerID, r.Name, toUnix(r.StartTime), toUnix(r.EndTime), r.Status,
		r.FilePath, r.ErrorMessage, toUnix(r.CreatedAt), toNullUnix(r.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting report %s: %w", r.Name, err)
	}
	r.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading report id: %w", err)
	}
	return nil
}

// GetReport returns a report by id, or ErrNotFound.
func (s *Store) GetReport(ctx context.Context, id int64) (model.Report, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = ?`, id)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Report{}, fmt.Errorf("report %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Report{}, fmt.Errorf("querying report %d: %w", id, err)
	}
	return r, nil
}

// UpdateReport persists a report's mutable fields.
func (s *Store) UpdateReport(ctx context.Context, r *model.Report) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE reports SET status = ?, file_path = ?, error_message = ?, completed_at = ?
		WHERE id = ?`,
		r.Status, r.FilePath, r.ErrorMessage, toNullUnix(r.CompletedAt), r.ID,
	)
	if err != nil {
		return fmt.Errorf("updating report %d: %w", r.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("report %d: %w", r.ID, ErrNotFound)
	}
	return nil
}

// ListReports returns reports newest first, optionally filtered by server
// (serverID > 0) and status.
func (s *Store) ListReports(ctx context.Context, serverID int64, status *model.ReportStatus) ([]model.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE 1 = 1`
	var args []any
	if serverID > 0 {
		query += ` AND server_id = ?`
		args = append(args, serverID)
	}
	if status != nil {
		query += ` AND status = ?`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying reports: %w", err)
	}
	defer rows.Close()

	var reports []model.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning report: %w", err)
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}
