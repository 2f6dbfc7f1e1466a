package notify

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/darshan-rambhia/fleetmon/internal/model"
)

// NtfyProvider publishes notifications to an ntfy topic.
type NtfyProvider struct {
	url    string
	topic  string
	client *http.Client
}

// NewNtfy creates a new ntfy notification provider.
func NewNtfy(url, topic string) *NtfyProvider {
	return &NtfyProvider{
		url:    strings.TrimRight(url, "/"),
		topic:  topic,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *NtfyProvider) Name() string { return "ntfy" }

func (n *NtfyProvider) Send(ctx context.Context, notif model.Notification) error {
	endpoint := fmt.Sprintf("%s/%s", n.url, n.topic)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(notif.Message))
	if err != nil {
		return fmt.Errorf("ntfy: build request: %w", err)
	}

	req.Header.Set("Title", notif.Title)
	req.Header.Set("Priority", ntfyPriority(notif.Severity))
	req.Header.Set("Tags", ntfyTags(notif))
	if notif.ServerID > 0 {
		req.Header.Set("X-Server-ID", strconv.FormatInt(notif.ServerID, 10))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("ntfy: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func ntfyPriority(severity string) string {
	switch strings.ToLower(severity) {
	case "critical":
		return "5"
	case "info":
		return "2"
	default:
		return "3"
	}
}

func ntfyTags(n model.Notification) string {
	var tags []string
	switch strings.ToLower(n.Severity) {
	case "critical":
		tags = append(tags, "rotating_light")
	case "warning":
		tags = append(tags, "warning")
	case "info":
		tags = append(tags, "information_source")
	}
	if n.Kind == "report" {
		tags = append(tags, "page_facing_up")
	}
	if t := n.Metadata["metric_type"]; t != "" {
		tags = append(tags, strings.ToLower(t))
	}
	return strings.Join(tags, ",")
}
