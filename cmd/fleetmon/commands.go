package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"

	"github.com/darshan-rambhia/fleetmon/internal/api"
	"github.com/darshan-rambhia/fleetmon/internal/collector"
	"github.com/darshan-rambhia/fleetmon/internal/config"
	"github.com/darshan-rambhia/fleetmon/internal/jobs"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type configLoader func() (*config.Config, error)

func serveCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run collection, reporting, the job pool and the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg *config.Config) error {
	ver, sha, built, dirty := buildInfo()
	slog.Info("starting fleetmon",
		"version", ver,
		"commit", sha,
		"built", built,
		"dirty", dirty,
		"go", runtime.Version(),
		"listen", cfg.Listen,
	)

	// Setup context with signal handling
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	q, err := openQueue(ctx, cfg.Queue)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, q)
	if err != nil {
		q.Close()
		return err
	}
	defer a.Close()

	pool := jobs.NewPool(q, a.handler(), cfg.WorkerPoolSize, a.stats, slog.Default())
	server := api.NewServer(cfg.Listen, api.Deps{
		Store:      a.store,
		Cache:      a.cache,
		Hub:        a.hub,
		Metrics:    a.stats.Handler(),
		Queue:      q,
		Reports:    a.scheduler,
		ReportsDir: a.writer.Dir(),
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return collector.Run(ctx, a.orchestrator) })
	g.Go(func() error { return collector.RunAfterInterval(ctx, a.scheduler) })
	g.Go(func() error { return pool.Run(ctx) })
	g.Go(func() error { return server.Run(ctx) })
	g.Go(func() error {
		// Hijacked websocket connections outlive server shutdown.
		<-ctx.Done()
		a.hub.Close()
		return nil
	})

	slog.Info("all components started",
		"servers", len(cfg.Servers),
		"queue", cfg.Queue.Type,
		"workers", cfg.WorkerPoolSize,
		"notifications", len(a.providers),
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("fatal error", "error", err)
		return err
	}

	slog.Info("fleetmon stopped gracefully")
	return nil
}

// runOnce wires the pipeline around an in-memory queue, runs fn, then
// handles every job fn queued before returning.
func runOnce(parent context.Context, cfg *config.Config, fn func(context.Context, *app) error) error {
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	q := jobs.NewMemoryQueue(0)
	a, err := newApp(ctx, cfg, q)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := fn(ctx, a); err != nil {
		return err
	}
	return q.Drain(ctx, a.handler())
}

func collectCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "collect",
		Short: "Run one collection cycle and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return runOnce(cmd.Context(), cfg, func(ctx context.Context, a *app) error {
				return a.queue.Enqueue(ctx, jobs.CollectMetrics{})
			})
		},
	}
}

func scheduleReportsCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule-reports",
		Short: "Create and generate today's daily reports, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return runOnce(cmd.Context(), cfg, func(ctx context.Context, a *app) error {
				return a.queue.Enqueue(ctx, jobs.ScheduleDailyReports{})
			})
		},
	}
}

func generateReportCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "generate-report ID",
		Short: "Generate one existing report and exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid report id %q", args[0])
			}
			cfg, err := load()
			if err != nil {
				return err
			}
			return runOnce(cmd.Context(), cfg, func(ctx context.Context, a *app) error {
				return a.queue.Enqueue(ctx, jobs.GenerateReport{ReportID: id})
			})
		},
	}
}
