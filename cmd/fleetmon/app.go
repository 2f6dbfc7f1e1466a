package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/darshan-rambhia/fleetmon/internal/alerter"
	"github.com/darshan-rambhia/fleetmon/internal/cache"
	"github.com/darshan-rambhia/fleetmon/internal/collector"
	"github.com/darshan-rambhia/fleetmon/internal/config"
	"github.com/darshan-rambhia/fleetmon/internal/hub"
	"github.com/darshan-rambhia/fleetmon/internal/jobs"
	"github.com/darshan-rambhia/fleetmon/internal/notify"
	"github.com/darshan-rambhia/fleetmon/internal/report"
	"github.com/darshan-rambhia/fleetmon/internal/store"
	"github.com/darshan-rambhia/fleetmon/internal/telemetry"
)

// app holds every wired component. Commands pick the parts they run.
type app struct {
	cfg       *config.Config
	store     *store.Store
	cache     *cache.Cache
	hub       *hub.Hub
	stats     *telemetry.Metrics
	queue     jobs.Queue
	writer    *report.DirWriter
	providers []notify.Provider

	orchestrator *collector.Orchestrator
	generator    *report.Generator
	scheduler    *report.Scheduler
}

// newApp opens the store, registers configured servers and wires the
// pipeline around q.
func newApp(ctx context.Context, cfg *config.Config, q jobs.Queue) (*app, error) {
	st, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	for _, s := range cfg.Servers {
		if _, err := st.UpsertServerByName(ctx, s.Name, s.Address, s.Description); err != nil {
			st.Close()
			return nil, fmt.Errorf("registering server %q: %w", s.Name, err)
		}
	}

	a := &app{
		cfg:       cfg,
		store:     st,
		cache:     cache.New(cfg.CacheTTL.Duration),
		hub:       hub.New(slog.Default()),
		stats:     telemetry.New(),
		queue:     q,
		writer:    report.NewDirWriter(cfg.ReportsDir),
		providers: buildProviders(cfg.Notifications),
	}

	dispatcher := alerter.NewDispatcher(thresholds(cfg.Alerts), a.hub, a.providers, a.stats, slog.Default())
	a.orchestrator = collector.NewOrchestrator(collector.OrchestratorOptions{
		Servers:    st,
		Sampler:    collector.NewHostSampler(collector.SystemHost{}, nil),
		Dispatcher: dispatcher,
		NewSession: func() collector.UnitOfWork { return st.Begin() },
		Cache:      a.cache,
		Stats:      a.stats,
		Logger:     slog.Default(),
		Interval:   cfg.CollectionInterval.Duration,
	})

	var mailer notify.Mailer = notify.LogMailer{}
	if len(a.providers) > 0 {
		mailer = notify.NewProviderMailer(a.providers)
	}
	a.generator = report.NewGenerator(st, a.writer, mailer, cfg.ReportRecipient, a.stats, slog.Default())
	a.scheduler = report.NewScheduler(st, q, cfg.ReportInterval.Duration, slog.Default())

	return a, nil
}

// handler routes queued jobs to the pipeline.
func (a *app) handler() jobs.Handler {
	return jobs.Dispatcher{
		Collect:        a.orchestrator.Collect,
		GenerateReport: a.generator.Generate,
		ScheduleDaily:  a.scheduler.ScheduleDaily,
	}
}

func (a *app) Close() error {
	a.hub.Close()
	if err := a.queue.Close(); err != nil {
		slog.Warn("closing job queue", "error", err)
	}
	return a.store.Close()
}

// openQueue returns the configured job queue.
func openQueue(ctx context.Context, cfg config.QueueConfig) (jobs.Queue, error) {
	if cfg.Type != "redis" {
		return jobs.NewMemoryQueue(0), nil
	}
	q, err := jobs.DialRedis(ctx, jobs.RedisConfig{
		Addr:      cfg.RedisAddr,
		Password:  cfg.RedisPassword,
		DB:        cfg.RedisDB,
		KeyPrefix: cfg.KeyPrefix,
	})
	if err != nil {
		return nil, err
	}
	return q, nil
}

func thresholds(c config.AlertsConfig) alerter.Thresholds {
	return alerter.Thresholds{
		CPU:          c.CPUThreshold,
		Memory:       c.MemoryThreshold,
		ResponseTime: c.ResponseTimeThreshold,
	}
}

func buildProviders(cfgs []config.NotificationConfig) []notify.Provider {
	var providers []notify.Provider
	for _, ncfg := range cfgs {
		switch ncfg.Type {
		case "ntfy":
			providers = append(providers, notify.NewNtfy(ncfg.URL, ncfg.Topic))
		case "webhook":
			providers = append(providers, notify.NewWebhook(ncfg.URL, ncfg.Method, ncfg.Headers))
		}
	}
	return providers
}

// setupLogging installs the default slog logger described by cfg.
func setupLogging(cfg *config.Config) {
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: logLevel}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
