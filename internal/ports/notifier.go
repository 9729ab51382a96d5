package ports

import (
	"context"

	"github.com/alejandrodnm/pegbot/internal/domain"
)

// Notifier delivers events to the owning user. Errors are logged by the
// caller and never retried.
type Notifier interface {
	Notify(ctx context.Context, event domain.Event) error
}
