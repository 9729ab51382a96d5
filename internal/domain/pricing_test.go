package domain_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/alejandrodnm/pegbot/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestTargetPrice_BuyBelowBid(t *testing.T) {
	got := domain.TargetPrice(d("0.452"), domain.SideBuy, 5, d("0.001"))
	assert.True(t, got.Equal(d("0.447")), "got %s", got)
}

func TestTargetPrice_SellAboveAsk(t *testing.T) {
	got := domain.TargetPrice(d("0.600"), domain.SideSell, 3, d("0.001"))
	assert.True(t, got.Equal(d("0.603")), "got %s", got)
}

func TestTargetPrice_ClampedToVenueRange(t *testing.T) {
	low := domain.TargetPrice(d("0.003"), domain.SideBuy, 10, d("0.001"))
	assert.True(t, low.Equal(domain.MinPrice), "got %s", low)

	high := domain.TargetPrice(d("0.995"), domain.SideSell, 10, d("0.001"))
	assert.True(t, high.Equal(domain.MaxPrice), "got %s", high)
}

func TestTargetPrice_RoundsToTick(t *testing.T) {
	got := domain.TargetPrice(d("0.4526"), domain.SideBuy, 0, d("0.001"))
	assert.True(t, got.Equal(d("0.453")), "got %s", got)
}

func TestDeltaCents(t *testing.T) {
	assert.True(t, domain.DeltaCents(d("0.447"), d("0.45")).Equal(d("0.3")))
	assert.True(t, domain.DeltaCents(d("0.455"), d("0.45")).Equal(d("0.5")))
}

func TestNeedsReposition_InclusiveBoundary(t *testing.T) {
	threshold := d("0.5")
	assert.True(t, domain.NeedsReposition(d("0.450"), d("0.455"), threshold), "delta == threshold moves")
	assert.False(t, domain.NeedsReposition(d("0.450"), d("0.454"), threshold), "one tick below does not")
}

func TestNeedsReposition_ZeroDeltaNeverMoves(t *testing.T) {
	assert.False(t, domain.NeedsReposition(d("0.450"), d("0.450"), decimal.Zero))
}

func TestQuote_TickFallback(t *testing.T) {
	q := domain.Quote{BestBid: d("0.4"), BestAsk: d("0.5")}
	assert.True(t, q.Tick(d("0.01")).Equal(d("0.01")))
	assert.True(t, q.Tick(decimal.Zero).Equal(domain.DefaultTickSize))

	q.TickSize = d("0.001")
	assert.True(t, q.Tick(d("0.01")).Equal(d("0.001")))
}

func TestOrderBook_BestPricesIgnoreLevelOrder(t *testing.T) {
	book := domain.OrderBook{
		Bids: []domain.BookEntry{{Price: d("0.40"), Size: d("10")}, {Price: d("0.45"), Size: d("5")}, {Price: d("0.46"), Size: d("0")}},
		Asks: []domain.BookEntry{{Price: d("0.55"), Size: d("10")}, {Price: d("0.50"), Size: d("5")}},
	}
	q := book.Quote()
	assert.True(t, q.BestBid.Equal(d("0.45")))
	assert.True(t, q.BestAsk.Equal(d("0.50")))
	assert.True(t, q.Reference(domain.SideBuy).Equal(d("0.45")))
	assert.True(t, q.Reference(domain.SideSell).Equal(d("0.50")))
}

func TestVenueError_Taxonomy(t *testing.T) {
	transient := fmt.Errorf("wrap: %w", &domain.VenueError{Op: "quote", Message: "timeout", Transient: true})
	assert.True(t, errors.Is(transient, domain.ErrTransientVenue))
	assert.Equal(t, "transient", domain.ErrorCode(transient))

	rejected := &domain.VenueError{Op: "cancel", Code: "ORDER_NOT_FOUND", Message: "gone"}
	assert.True(t, errors.Is(rejected, domain.ErrCancelRejected))
	assert.False(t, errors.Is(rejected, domain.ErrTransientVenue))
	assert.Equal(t, "ORDER_NOT_FOUND", domain.ErrorCode(rejected))

	status := &domain.VenueError{Op: "status", Message: "boom"}
	assert.True(t, errors.Is(status, domain.ErrStatusCheckFailed))
}
