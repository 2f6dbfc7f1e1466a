// Package collector samples server health on a timer and feeds each sample
// through alert dispatch and persistence.
package collector

import (
	"context"
	"log/slog"
	"time"
)

// Collector is the interface for all periodic jobs.
type Collector interface {
	Name() string
	Collect(ctx context.Context) error
	Interval() time.Duration
}

// Run starts a collector loop that calls Collect immediately and then at
// the configured interval. It blocks until the context is cancelled. Runs
// never overlap: a tick that fires during a slow Collect is dropped.
func Run(ctx context.Context, c Collector) error {
	return run(ctx, c, true)
}

// RunAfterInterval is Run without the collection on startup, for jobs that
// must not fire on every restart.
func RunAfterInterval(ctx context.Context, c Collector) error {
	return run(ctx, c, false)
}

func run(ctx context.Context, c Collector, immediate bool) error {
	name := c.Name()
	interval := c.Interval()
	slog.Info("collector started", "name", name, "interval", interval)

	if immediate {
		if err := c.Collect(ctx); err != nil {
			slog.Error("collection failed", "collector", name, "error", err)
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("collector stopped", "name", name)
			return ctx.Err()
		case <-ticker.C:
			if err := c.Collect(ctx); err != nil {
				slog.Error("collection failed", "collector", name, "error", err)
			}
		}
	}
}
