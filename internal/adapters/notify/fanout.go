package notify

import (
	"context"
	"errors"

	"github.com/alejandrodnm/pegbot/internal/domain"
	"github.com/alejandrodnm/pegbot/internal/ports"
)

// Fanout entrega cada evento a todos los notificadores. Un fallo en uno no
// impide la entrega al resto.
type Fanout struct {
	targets []ports.Notifier
}

// NewFanout ignora los notificadores nil.
func NewFanout(targets ...ports.Notifier) *Fanout {
	f := &Fanout{}
	for _, t := range targets {
		if t != nil {
			f.targets = append(f.targets, t)
		}
	}
	return f
}

// Notify implementa ports.Notifier.
func (f *Fanout) Notify(ctx context.Context, ev domain.Event) error {
	var errs []error
	for _, t := range f.targets {
		if err := t.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
