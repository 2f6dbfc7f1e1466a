package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/darshan-rambhia/fleetmon/internal/telemetry"
)

// Handler runs one job.
type Handler interface {
	Handle(ctx context.Context, j Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, j Job) error

func (f HandlerFunc) Handle(ctx context.Context, j Job) error { return f(ctx, j) }

// Dispatcher routes each job variant to its function. A nil function makes
// that variant unknown.
type Dispatcher struct {
	Collect        func(ctx context.Context) error
	GenerateReport func(ctx context.Context, reportID int64) error
	ScheduleDaily  func(ctx context.Context) error
}

var _ Handler = Dispatcher{}

func (d Dispatcher) Handle(ctx context.Context, j Job) error {
	switch j := j.(type) {
	case CollectMetrics:
		if d.Collect != nil {
			return d.Collect(ctx)
		}
	case GenerateReport:
		if d.GenerateReport != nil {
			return d.GenerateReport(ctx, j.ReportID)
		}
	case ScheduleDailyReports:
		if d.ScheduleDaily != nil {
			return d.ScheduleDaily(ctx)
		}
	}
	return fmt.Errorf("%w: %T", ErrUnknownJob, j)
}

// WorkerPool bounds concurrent job execution.
type WorkerPool struct {
	sem chan struct{}
}

// NewWorkerPool creates a worker pool with the given max concurrent workers.
func NewWorkerPool(maxWorkers int) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	return &WorkerPool{sem: make(chan struct{}, maxWorkers)}
}

// Submit runs fn in the pool, blocking if all workers are busy.
// Returns ctx.Err() if context is cancelled while waiting.
func (p *WorkerPool) Submit(ctx context.Context, fn func()) error {
	select {
	case p.sem <- struct{}{}:
		go func() {
			defer func() { <-p.sem }()
			fn()
		}()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pool pulls jobs off a queue and runs them on a WorkerPool. Handler errors
// are logged and counted; jobs are not retried.
type Pool struct {
	queue   Queue
	handler Handler
	workers *WorkerPool
	stats   *telemetry.Metrics
	logger  *slog.Logger

	retryDelay time.Duration
	wg         sync.WaitGroup
}

// NewPool creates a pool running at most size jobs at once.
func NewPool(q Queue, h Handler, size int, stats *telemetry.Metrics, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		queue:      q,
		handler:    h,
		workers:    NewWorkerPool(size),
		stats:      stats,
		logger:     logger,
		retryDelay: time.Second,
	}
}

// Run dequeues until ctx is cancelled or the queue is closed, then waits
// for running jobs to finish.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Info("job pool started", "workers", cap(p.workers.sem))
	defer p.wg.Wait()

	for {
		job, err := p.queue.Dequeue(ctx)
		switch {
		case err == nil:
		case errors.Is(err, ErrQueueClosed):
			p.logger.Info("job pool stopped", "reason", "queue closed")
			return nil
		case ctx.Err() != nil:
			p.logger.Info("job pool stopped")
			return ctx.Err()
		case errors.Is(err, ErrUnknownJob):
			p.stats.JobHandled("unknown", "rejected")
			p.logger.Error("dropping undecodable job", "error", err)
			continue
		default:
			p.logger.Error("dequeueing job", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.retryDelay):
			}
			continue
		}

		p.wg.Add(1)
		if err := p.workers.Submit(ctx, func() {
			defer p.wg.Done()
			p.handle(ctx, job)
		}); err != nil {
			p.wg.Done()
			p.logger.Warn("job not started", "kind", job.Kind(), "error", err)
			return err
		}
	}
}

func (p *Pool) handle(ctx context.Context, job Job) {
	start := time.Now()
	err := p.safeHandle(ctx, job)
	if err != nil {
		p.stats.JobHandled(string(job.Kind()), "error")
		p.logger.Error("job failed", "kind", job.Kind(), "error", err)
		return
	}
	p.stats.JobHandled(string(job.Kind()), "ok")
	p.logger.Debug("job finished", "kind", job.Kind(), "duration", time.Since(start).Round(time.Millisecond))
}

func (p *Pool) safeHandle(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.handler.Handle(ctx, job)
}
