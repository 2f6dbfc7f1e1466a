package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/darshan-rambhia/fleetmon/internal/jobs"
	"github.com/darshan-rambhia/fleetmon/internal/model"
)

// SchedulerStore is the persistence the scheduler needs.
type SchedulerStore interface {
	ListServers(ctx context.Context) ([]model.Server, error)
	GetServer(ctx context.Context, id int64) (model.Server, error)
	CreateReport(ctx context.Context, r *model.Report) error
}

// Enqueuer accepts jobs for asynchronous execution.
type Enqueuer interface {
	Enqueue(ctx context.Context, j jobs.Job) error
}

// ErrInvalidWindow is returned for report requests whose start is not
// before their end.
var ErrInvalidWindow = errors.New("report window start must be before end")

// Scheduler creates report rows and hands them to the job queue. It
// implements the collector interface so it can run on a timer.
type Scheduler struct {
	store    SchedulerStore
	queue    Enqueuer
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewScheduler creates a scheduler. Interval defaults to 24h.
func NewScheduler(st SchedulerStore, q Enqueuer, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{store: st, queue: q, interval: interval, logger: logger, now: time.Now}
}

func (s *Scheduler) Name() string                      { return "daily-reports" }
func (s *Scheduler) Interval() time.Duration           { return s.interval }
func (s *Scheduler) Collect(ctx context.Context) error { return s.ScheduleDaily(ctx) }

// ScheduleDaily creates a Pending report covering the last 24 hours for
// every server and enqueues its generation. A failure for one server is
// logged and the rest are still scheduled; all failures are returned
// together.
func (s *Scheduler) ScheduleDaily(ctx context.Context) error {
	s.logger.Info("scheduling daily reports")

	servers, err := s.store.ListServers(ctx)
	if err != nil {
		return fmt.Errorf("listing servers: %w", err)
	}

	end := s.now().UTC()
	start := end.Add(-24 * time.Hour)
	var errs []error
	scheduled := 0
	for _, srv := range servers {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		name := fmt.Sprintf("Daily_Report_%s_%s", srv.Name, end.Format("20060102"))
		r, err := s.schedule(ctx, srv.ID, name, start, end)
		if err != nil {
			s.logger.Error("scheduling daily report", "server_id", srv.ID, "server", srv.Name, "error", err)
			errs = append(errs, fmt.Errorf("server %d: %w", srv.ID, err))
			continue
		}
		scheduled++
		s.logger.Info("scheduled daily report", "server_id", srv.ID, "server", srv.Name, "report_id", r.ID)
	}

	s.logger.Info("daily report scheduling finished", "scheduled", scheduled, "failed", len(servers)-scheduled)
	return errors.Join(errs...)
}

// Request creates an on-demand report for one server over [start, end] and
// enqueues its generation.
func (s *Scheduler) Request(ctx context.Context, serverID int64, start, end time.Time) (model.Report, error) {
	if !start.Before(end) {
		return model.Report{}, ErrInvalidWindow
	}
	srv, err := s.store.GetServer(ctx, serverID)
	if err != nil {
		return model.Report{}, fmt.Errorf("loading server %d: %w", serverID, err)
	}
	name := fmt.Sprintf("Performance_Report_%s_%s", srv.Name, s.now().UTC().Format("20060102150405"))
	return s.schedule(ctx, srv.ID, name, start.UTC(), end.UTC())
}

func (s *Scheduler) schedule(ctx context.Context, serverID int64, name string, start, end time.Time) (model.Report, error) {
	r := model.Report{
		ServerID:  serverID,
		Name:      name,
		StartTime: start,
		EndTime:   end,
		Status:    model.ReportPending,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateReport(ctx, &r); err != nil {
		return model.Report{}, fmt.Errorf("creating report: %w", err)
	}
	if err := s.queue.Enqueue(ctx, jobs.GenerateReport{ReportID: r.ID}); err != nil {
		return r, fmt.Errorf("enqueueing report %d: %w", r.ID, err)
	}
	return r, nil
}
