package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/darshan-rambhia/fleetmon/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	method  string
	headers http.Header
	event   WebhookEvent
}

func newWebhookServer(t *testing.T, status int, reply string) (*httptest.Server, *captured) {
	t.Helper()
	got := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.headers = r.Header.Clone()
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got.event))
		w.WriteHeader(status)
		w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func TestWebhookName(t *testing.T) {
	p := NewWebhook("http://localhost/hook", "", nil)
	assert.Equal(t, "webhook", p.Name())
}

func TestWebhookSendAlertEvent(t *testing.T) {
	srv, got := newWebhookServer(t, http.StatusOK, "")
	at := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	p := NewWebhook(srv.URL+"/hook", "", nil)
	err := p.Send(context.Background(), model.Notification{
		Kind:      "alert",
		Severity:  "warning",
		Title:     "CPU alert: web-1",
		Message:   "CPU at 92.00 (threshold 80.00)",
		ServerID:  1,
		Timestamp: at,
		Metadata:  map[string]string{"metric_type": "CPU", "alert_id": "7"},
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "application/json", got.headers.Get("Content-Type"))
	assert.Equal(t, "alert.raised", got.headers.Get(HeaderEvent))
	assert.Equal(t, got.event.DeliveryID, got.headers.Get(HeaderDelivery))
	assert.NotEmpty(t, got.event.DeliveryID)

	assert.Equal(t, "alert.raised", got.event.Event)
	assert.Equal(t, int64(1), got.event.ServerID)
	assert.Equal(t, "warning", got.event.Severity)
	assert.True(t, at.Equal(got.event.OccurredAt))
	assert.Equal(t, map[string]string{"metric_type": "CPU", "alert_id": "7"}, got.event.Attributes)
}

func TestNewWebhookEvent(t *testing.T) {
	tests := []struct {
		kind string
		want string
	}{
		{"alert", "alert.raised"},
		{"report", "report.completed"},
		{"", "notification"},
		{"custom", "custom"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			ev := NewWebhookEvent(model.Notification{Kind: tt.kind, Recipient: "ops@example.com"})
			assert.Equal(t, tt.want, ev.Event)
			assert.Equal(t, "ops@example.com", ev.Recipient)
			assert.False(t, ev.OccurredAt.IsZero())
		})
	}

	a := NewWebhookEvent(model.Notification{Kind: "alert"})
	b := NewWebhookEvent(model.Notification{Kind: "alert"})
	assert.NotEqual(t, a.DeliveryID, b.DeliveryID)
}

func TestWebhookCustomHeadersAndMethod(t *testing.T) {
	srv, got := newWebhookServer(t, http.StatusNoContent, "")

	p := NewWebhook(srv.URL, "put", map[string]string{
		"Authorization": "Bearer tok123",
		HeaderEvent:     "spoofed",
	})
	require.NoError(t, p.Send(context.Background(), model.Notification{Kind: "report", Title: "Report Generated"}))

	assert.Equal(t, "Bearer tok123", got.headers.Get("Authorization"))
	assert.Equal(t, http.MethodPut, got.method)
	assert.Equal(t, "report.completed", got.headers.Get(HeaderEvent))
}

func TestWebhookRejectedIncludesBody(t *testing.T) {
	srv, _ := newWebhookServer(t, http.StatusBadGateway, "upstream down\n")

	p := NewWebhook(srv.URL, "", nil)
	err := p.Send(context.Background(), model.Notification{Kind: "alert", Title: "Test"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "upstream down")
}

func TestWebhookSendBadURL(t *testing.T) {
	p := NewWebhook("://invalid", "", nil)
	err := p.Send(context.Background(), model.Notification{Title: "Test"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "webhook:")
}
