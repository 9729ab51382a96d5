package ports

import (
	"context"

	"github.com/alejandrodnm/pegbot/internal/domain"
)

// Venue is one account's session against the order-matching venue.
// Every call may fail; transport failures match domain.ErrTransientVenue.
// Batch calls report success per item and never by the absence of an error alone.
type Venue interface {
	// Status returns the venue's view of a resting order.
	Status(ctx context.Context, venueOrderID string) (domain.OrderStatus, error)

	// Quote returns a fresh top of book for the token.
	Quote(ctx context.Context, marketID, tokenID string, side domain.Side) (domain.Quote, error)

	// Cancel cancels the ids as one batch and returns one result per id.
	Cancel(ctx context.Context, venueOrderIDs []string) ([]domain.CancelResult, error)

	// Place submits the specs as one batch. Results are positional.
	Place(ctx context.Context, specs []domain.OrderSpec) ([]domain.PlaceResult, error)
}

// VenueRegistry hands out the per-account venue session. Sessions are never
// shared between accounts.
type VenueRegistry interface {
	// Venue returns the account's session. Credential or auth failures
	// match domain.ErrAccountUnhealthy.
	Venue(ctx context.Context, account domain.Account) (Venue, error)
}
