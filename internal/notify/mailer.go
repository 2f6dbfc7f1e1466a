package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/darshan-rambhia/fleetmon/internal/model"
)

// Mailer dispatches an email-like message.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogMailer writes messages to the log instead of delivering them.
type LogMailer struct {
	Logger *slog.Logger
}

func (m LogMailer) Send(_ context.Context, to, subject, body string) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("sending email", "to", to, "subject", subject, "body", body)
	return nil
}

// ProviderMailer turns messages into info notifications and fans them out
// to every provider, retrying each one a few times.
type ProviderMailer struct {
	providers []Provider
	attempts  int
	backoff   time.Duration
	now       func() time.Time
}

// NewProviderMailer creates a mailer over the given providers.
func NewProviderMailer(providers []Provider) *ProviderMailer {
	return &ProviderMailer{
		providers: providers,
		attempts:  3,
		backoff:   300 * time.Millisecond,
		now:       time.Now,
	}
}

// Send returns an error when any provider still fails after all attempts.
func (m *ProviderMailer) Send(ctx context.Context, to, subject, body string) error {
	notif := model.Notification{
		Kind:      "report",
		Severity:  "info",
		Title:     subject,
		Message:   body,
		Recipient: to,
		Timestamp: m.now().UTC(),
	}

	var errs []error
	for _, p := range m.providers {
		if err := m.sendWithRetry(ctx, p, notif); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (m *ProviderMailer) sendWithRetry(ctx context.Context, p Provider, notif model.Notification) error {
	var err error
	for attempt := 1; attempt <= m.attempts; attempt++ {
		if err = p.Send(ctx, notif); err == nil {
			return nil
		}
		if attempt == m.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * m.backoff):
		}
	}
	return fmt.Errorf("after %d attempts: %w", m.attempts, err)
}
