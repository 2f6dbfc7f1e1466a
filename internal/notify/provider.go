// Package notify delivers alert and report notifications to external channels.
package notify

import (
	"context"

	"github.com/darshan-rambhia/fleetmon/internal/model"
)

// Provider sends notifications through a specific channel.
type Provider interface {
	Name() string
	Send(ctx context.Context, n model.Notification) error
}
