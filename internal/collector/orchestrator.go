package collector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/darshan-rambhia/fleetmon/internal/alerter"
	"github.com/darshan-rambhia/fleetmon/internal/cache"
	"github.com/darshan-rambhia/fleetmon/internal/model"
	"github.com/darshan-rambhia/fleetmon/internal/telemetry"
)

// UnitOfWork stages everything one collection cycle writes.
type UnitOfWork interface {
	alerter.UnitOfWork
	AddMetric(m *model.Metric)
	SetServerStatus(serverID int64, status model.ServerStatus)
}

// ServerLister returns the servers to sample, in a stable order.
type ServerLister interface {
	ListServers(ctx context.Context) ([]model.Server, error)
}

// Dispatcher broadcasts and evaluates one metric.
type Dispatcher interface {
	Dispatch(ctx context.Context, uow alerter.UnitOfWork, server model.Server, m model.Metric) error
}

// Evictor drops cached views.
type Evictor interface {
	EvictByTag(tag string)
}

// OrchestratorOptions wires an Orchestrator.
type OrchestratorOptions struct {
	Servers    ServerLister
	Sampler    Sampler
	Dispatcher Dispatcher
	NewSession func() UnitOfWork
	Cache      Evictor            // optional
	Stats      *telemetry.Metrics // optional
	Logger     *slog.Logger       // optional
	Interval   time.Duration
}

// Orchestrator runs collection cycles. It implements Collector.
type Orchestrator struct {
	opts   OrchestratorOptions
	logger *slog.Logger

	mu sync.Mutex // one cycle at a time
}

var _ Collector = (*Orchestrator)(nil)

// NewOrchestrator creates an orchestrator. Interval defaults to two minutes.
func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	if opts.Interval <= 0 {
		opts.Interval = 2 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{opts: opts, logger: logger}
}

func (o *Orchestrator) Name() string            { return "metrics" }
func (o *Orchestrator) Interval() time.Duration { return o.opts.Interval }

// Collect runs one cycle over every registered server. A failure for one
// server is logged and the cycle moves on. Everything staged is written in
// a final commit. When ctx is cancelled the loop stops before the next
// server and nothing further is committed.
func (o *Orchestrator) Collect(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	start := time.Now()
	servers, err := o.opts.Servers.ListServers(ctx)
	if err != nil {
		o.opts.Stats.CycleFinished("failed", time.Since(start))
		return fmt.Errorf("listing servers: %w", err)
	}
	if len(servers) == 0 {
		o.logger.Warn("no servers registered, skipping collection")
		o.opts.Stats.CycleFinished("empty", time.Since(start))
		return nil
	}

	uow := o.opts.NewSession()
	failed := 0
	for _, srv := range servers {
		if err := ctx.Err(); err != nil {
			o.evict()
			o.opts.Stats.CycleFinished("cancelled", time.Since(start))
			return fmt.Errorf("collection cancelled: %w", err)
		}
		if err := o.collectOne(ctx, uow, srv); err != nil {
			failed++
			o.opts.Stats.Sample(false)
			o.logger.Error("collecting server metrics", "server_id", srv.ID, "server", srv.Name, "error", err)
			continue
		}
		o.opts.Stats.Sample(true)
	}

	err = uow.Commit(ctx)
	o.evict()
	if err != nil {
		o.opts.Stats.CycleFinished("failed", time.Since(start))
		return fmt.Errorf("committing collection cycle: %w", err)
	}

	o.opts.Stats.CycleFinished("ok", time.Since(start))
	o.logger.Info("collection cycle finished",
		"servers", len(servers),
		"failed", failed,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

func (o *Orchestrator) collectOne(ctx context.Context, uow UnitOfWork, srv model.Server) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	m, err := o.opts.Sampler.Sample(ctx, srv)
	if err != nil {
		return fmt.Errorf("sampling: %w", err)
	}
	uow.AddMetric(&m)

	if err := o.opts.Dispatcher.Dispatch(ctx, uow, srv, m); err != nil {
		return fmt.Errorf("dispatching: %w", err)
	}

	uow.SetServerStatus(srv.ID, m.Status)
	o.logger.Debug("collected metrics", "server_id", srv.ID, "server", srv.Name, "status", m.Status)
	return nil
}

func (o *Orchestrator) evict() {
	if o.opts.Cache != nil {
		o.opts.Cache.EvictByTag(cache.TagLatestMetrics)
	}
}
