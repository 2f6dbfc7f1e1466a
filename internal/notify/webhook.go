package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/darshan-rambhia/fleetmon/internal/model"
	"github.com/google/uuid"
)

// Webhook event headers.
const (
	HeaderEvent    = "X-Fleetmon-Event"
	HeaderDelivery = "X-Fleetmon-Delivery"
)

// WebhookEvent is the JSON body posted to a webhook. Event is "alert.raised"
// for threshold breaches and "report.completed" for finished reports.
type WebhookEvent struct {
	Event      string            `json:"event"`
	DeliveryID string            `json:"delivery_id"`
	Severity   string            `json:"severity"`
	ServerID   int64             `json:"server_id,omitempty"`
	Title      string            `json:"title"`
	Message    string            `json:"message"`
	Recipient  string            `json:"recipient,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// eventName maps a notification kind to its webhook event.
func eventName(kind string) string {
	switch kind {
	case "alert":
		return "alert.raised"
	case "report":
		return "report.completed"
	case "":
		return "notification"
	default:
		return kind
	}
}

// NewWebhookEvent builds the body for n with a fresh delivery id.
func NewWebhookEvent(n model.Notification) WebhookEvent {
	at := n.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	return WebhookEvent{
		Event:      eventName(n.Kind),
		DeliveryID: uuid.NewString(),
		Severity:   n.Severity,
		ServerID:   n.ServerID,
		Title:      n.Title,
		Message:    n.Message,
		Recipient:  n.Recipient,
		OccurredAt: at.UTC(),
		Attributes: n.Metadata,
	}
}

// WebhookProvider posts fleetmon events as JSON to an HTTP endpoint.
type WebhookProvider struct {
	url     string
	method  string
	headers map[string]string
	client  *http.Client
}

// NewWebhook creates a webhook provider. An empty method defaults to POST.
func NewWebhook(url, method string, headers map[string]string) *WebhookProvider {
	if method == "" {
		method = http.MethodPost
	}
	return &WebhookProvider{
		url:     url,
		method:  strings.ToUpper(method),
		headers: headers,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *WebhookProvider) Name() string { return "webhook" }

func (w *WebhookProvider) Send(ctx context.Context, n model.Notification) error {
	ev := NewWebhookEvent(n)
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("webhook: encoding %s event: %w", ev.Event, err)
	}

	req, err := http.NewRequestWithContext(ctx, w.method, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, ev.Event)
	req.Header.Set(HeaderDelivery, ev.DeliveryID)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: delivering %s: %w", ev.Event, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("webhook: %s rejected with status %d: %s",
			ev.Event, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}
