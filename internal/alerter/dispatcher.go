package alerter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/darshan-rambhia/fleetmon/internal/hub"
	"github.com/darshan-rambhia/fleetmon/internal/model"
	"github.com/darshan-rambhia/fleetmon/internal/notify"
	"github.com/darshan-rambhia/fleetmon/internal/telemetry"
)

// UnitOfWork stages alerts and flushes everything staged so far.
type UnitOfWork interface {
	AddAlert(a *model.Alert)
	Commit(ctx context.Context) error
}

// Broadcaster pushes events to real-time subscribers.
type Broadcaster interface {
	PublishToGroup(ctx context.Context, group, event string, payload any) error
	PublishToAll(ctx context.Context, event string, payload any) error
}

// Dispatcher broadcasts a fresh metric, evaluates it, and persists and
// announces the resulting alerts.
type Dispatcher struct {
	thresholds  Thresholds
	broadcaster Broadcaster
	providers   []notify.Provider
	metrics     *telemetry.Metrics
	logger      *slog.Logger
}

// NewDispatcher creates a dispatcher. providers and metrics may be nil.
func NewDispatcher(t Thresholds, b Broadcaster, providers []notify.Provider, metrics *telemetry.Metrics, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		thresholds:  t,
		broadcaster: b,
		providers:   providers,
		metrics:     metrics,
		logger:      logger,
	}
}

// Dispatch handles one metric for one server. Broadcast failures are logged
// and never stop persistence. The unit of work is committed only when at
// least one alert was raised; a commit error is returned.
func (d *Dispatcher) Dispatch(ctx context.Context, uow UnitOfWork, server model.Server, m model.Metric) error {
	if err := d.broadcaster.PublishToGroup(ctx, hub.ServerGroup(server.ID), hub.EventMetric, m); err != nil {
		d.metrics.BroadcastFailed(hub.EventMetric)
		d.logger.Warn("broadcasting metric", "server_id", server.ID, "server", server.Name, "error", err)
	}

	candidates := Evaluate(m, d.thresholds)
	if len(candidates) == 0 {
		return nil
	}

	alerts := make([]*model.Alert, len(candidates))
	for i := range candidates {
		a := &candidates[i]
		alerts[i] = a
		uow.AddAlert(a)
		if err := d.broadcaster.PublishToAll(ctx, hub.EventAlert, a); err != nil {
			d.metrics.BroadcastFailed(hub.EventAlert)
			d.logger.Warn("broadcasting alert", "server_id", server.ID, "type", a.MetricType, "error", err)
		}
	}

	if err := uow.Commit(ctx); err != nil {
		return fmt.Errorf("persisting alerts for server %d: %w", server.ID, err)
	}

	for _, a := range alerts {
		d.metrics.AlertRaised(a.MetricType, a.Severity)
		d.logger.Warn("alert raised",
			"server_id", server.ID,
			"server", server.Name,
			"type", a.MetricType,
			"severity", a.Severity,
			"value", a.Value,
			"threshold", a.Threshold,
		)
		d.notify(ctx, server, *a)
	}
	return nil
}

func (d *Dispatcher) notify(ctx context.Context, server model.Server, a model.Alert) {
	if len(d.providers) == 0 {
		return
	}
	notif := alertNotification(server, a)
	for _, p := range d.providers {
		if err := p.Send(ctx, notif); err != nil {
			d.logger.Error("sending notification", "provider", p.Name(), "server_id", server.ID, "type", a.MetricType, "error", err)
		}
	}
}

func alertNotification(server model.Server, a model.Alert) model.Notification {
	name := server.Name
	if name == "" {
		name = fmt.Sprintf("server %d", server.ID)
	}
	msg := fmt.Sprintf("%s at %.2f (threshold %.2f)", a.MetricType, a.Value, a.Threshold)
	if a.MetricType == model.AlertTypeStatus {
		msg = fmt.Sprintf("%s is %s", name, model.StatusDown)
	}
	return model.Notification{
		Kind:      "alert",
		Severity:  strings.ToLower(a.Severity),
		Title:     fmt.Sprintf("%s alert: %s", a.MetricType, name),
		Message:   msg,
		ServerID:  server.ID,
		Timestamp: a.CreatedAt,
		Metadata: map[string]string{
			"metric_type": a.MetricType,
			"alert_id":    fmt.Sprintf("%d", a.ID),
		},
	}
}
