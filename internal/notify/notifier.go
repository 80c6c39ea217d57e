// Package notify forwards newly ingested error records to outside channels.
// Delivery is best-effort: callers log failures and carry on.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/errorcue/errorcue/pkg/models"
)

// Sentinel errors for notification failures.
var (
	ErrNotifyRejected    = errors.New("notification rejected")
	ErrNotifyUnreachable = errors.New("notification endpoint unreachable")
	ErrNotifyTimeout     = errors.New("notification timeout")
)

// Notifier delivers a record to one channel.
type Notifier interface {
	Notify(ctx context.Context, rec *models.ErrorRecord) error
	Name() string
}

// Multi calls every notifier in order and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, rec *models.ErrorRecord) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Name() string { return "multi" }

// Noop drops every notification.
type Noop struct{}

func (Noop) Notify(context.Context, *models.ErrorRecord) error { return nil }
func (Noop) Name() string                                      { return "noop" }
