package paper

import (
	"context"
	"sync"

	"github.com/alejandrodnm/pegbot/internal/domain"
	"github.com/alejandrodnm/pegbot/internal/ports"
)

// Registry entrega un venue paper por cuenta. Todas comparten la fuente de
// books pero no las órdenes.
type Registry struct {
	books BookSource

	mu     sync.Mutex
	venues map[string]*Venue
}

// NewRegistry crea el registro paper.
func NewRegistry(books BookSource) *Registry {
	return &Registry{books: books, venues: make(map[string]*Venue)}
}

// Venue implementa ports.VenueRegistry.
func (r *Registry) Venue(_ context.Context, account domain.Account) (ports.Venue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.venues[account.ID]
	if !ok {
		v = NewVenue(r.books)
		r.venues[account.ID] = v
	}
	return v, nil
}
