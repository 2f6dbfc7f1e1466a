package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/darshan-rambhia/fleetmon/internal/model"
	"github.com/darshan-rambhia/fleetmon/internal/notify"
	"github.com/darshan-rambhia/fleetmon/internal/store"
	"github.com/darshan-rambhia/fleetmon/internal/telemetry"
)

// Store is the persistence the report job needs.
type Store interface {
	GetReport(ctx context.Context, id int64) (model.Report, error)
	GetServer(ctx context.Context, id int64) (model.Server, error)
	UpdateReport(ctx context.Context, r *model.Report) error
	MetricsInRange(ctx context.Context, serverID int64, start, end time.Time) ([]model.Metric, error)
}

// Generator runs the report job: Pending or Processing reports become
// Completed with an artifact, or Failed with the reason.
type Generator struct {
	store     Store
	writer    Writer
	mailer    notify.Mailer
	recipient string
	stats     *telemetry.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewGenerator creates a report job. stats and logger may be nil.
func NewGenerator(st Store, w Writer, mailer notify.Mailer, recipient string, stats *telemetry.Metrics, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		store:     st,
		writer:    w,
		mailer:    mailer,
		recipient: recipient,
		stats:     stats,
		logger:    logger,
		now:       time.Now,
	}
}

// Generate builds the artifact for one report.
//
// A missing or already terminal report, or one whose server is gone, is
// logged and skipped. Failures to
// read the window or write the artifact are recorded on the report, which
// becomes Failed, and Generate returns nil. Errors persisting a state change
// and errors sending the completion notice are returned; in the latter case
// the report stays Completed.
func (g *Generator) Generate(ctx context.Context, reportID int64) error {
	g.logger.Info("generating report", "report_id", reportID)

	r, err := g.store.GetReport(ctx, reportID)
	if errors.Is(err, store.ErrNotFound) {
		g.logger.Error("report not found", "report_id", reportID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading report %d: %w", reportID, err)
	}
	if r.Status.Terminal() {
		g.logger.Info("report already finished, skipping", "report_id", reportID, "status", r.Status)
		return nil
	}
	srv, err := g.store.GetServer(ctx, r.ServerID)
	if errors.Is(err, store.ErrNotFound) {
		g.logger.Error("report server not found", "report_id", reportID, "server_id", r.ServerID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading server %d of report %d: %w", r.ServerID, reportID, err)
	}

	if err := r.Transition(model.ReportProcessing); err != nil {
		return err
	}
	if err := g.store.UpdateReport(ctx, &r); err != nil {
		return fmt.Errorf("marking report %d processing: %w", reportID, err)
	}

	name, err := g.produce(ctx, r)
	if err != nil {
		return g.fail(ctx, r, err)
	}

	done := r
	if err := done.Transition(model.ReportCompleted); err != nil {
		return err
	}
	completedAt := g.now().UTC()
	done.FilePath = name
	done.CompletedAt = &completedAt
	if err := g.store.UpdateReport(context.WithoutCancel(ctx), &done); err != nil {
		return fmt.Errorf("marking report %d completed: %w", reportID, err)
	}
	g.stats.ReportFinished(model.ReportCompleted.String())
	g.logger.Info("report completed", "report_id", reportID, "server", srv.Name, "file", name)

	body := fmt.Sprintf("Your report %s is ready. File: %s", done.Name, name)
	if err := g.mailer.Send(ctx, g.recipient, "Report Generated", body); err != nil {
		return fmt.Errorf("notifying completion of report %d: %w", reportID, err)
	}
	return nil
}

func (g *Generator) produce(ctx context.Context, r model.Report) (string, error) {
	metrics, err := g.store.MetricsInRange(ctx, r.ServerID, r.StartTime, r.EndTime)
	if err != nil {
		return "", fmt.Errorf("loading metrics: %w", err)
	}
	if len(metrics) == 0 {
		g.logger.Warn("no metrics in report window", "report_id", r.ID, "server_id", r.ServerID,
			"start", r.StartTime, "end", r.EndTime)
	}
	return g.writer.Write(ctx, BuildArtifact(r, metrics, g.now()))
}

// fail records cause on the report and persists it as Failed. The write
// ignores cancellation of ctx so the terminal state lands.
func (g *Generator) fail(ctx context.Context, r model.Report, cause error) error {
	g.logger.Error("report generation failed", "report_id", r.ID, "server_id", r.ServerID, "error", cause)

	if err := r.Transition(model.ReportFailed); err != nil {
		return err
	}
	completedAt := g.now().UTC()
	r.ErrorMessage = cause.Error()
	r.CompletedAt = &completedAt
	if err := g.store.UpdateReport(context.WithoutCancel(ctx), &r); err != nil {
		return fmt.Errorf("marking report %d failed: %w", r.ID, err)
	}
	g.stats.ReportFinished(model.ReportFailed.String())
	return nil
}
