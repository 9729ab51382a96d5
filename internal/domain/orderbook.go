package domain

import "github.com/shopspring/decimal"

// OrderBook is a token's book as reported by the venue.
// Venues disagree on level ordering, so best prices are found by scanning.
type OrderBook struct {
	TokenID  string
	Bids     []BookEntry
	Asks     []BookEntry
	TickSize decimal.Decimal
}

// BookEntry is one price level.
type BookEntry struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// BestBid returns the highest bid, or zero when there are no bids.
func (ob OrderBook) BestBid() decimal.Decimal {
	best := decimal.Zero
	for _, b := range ob.Bids {
		if b.Size.IsPositive() && b.Price.GreaterThan(best) {
			best = b.Price
		}
	}
	return best
}

// BestAsk returns the lowest ask, or zero when there are no asks.
func (ob OrderBook) BestAsk() decimal.Decimal {
	best := decimal.Zero
	for _, a := range ob.Asks {
		if !a.Size.IsPositive() || !a.Price.IsPositive() {
			continue
		}
		if best.IsZero() || a.Price.LessThan(best) {
			best = a.Price
		}
	}
	return best
}

// Quote reduces the book to its top of book.
func (ob OrderBook) Quote() Quote {
	return Quote{
		BestBid:  ob.BestBid(),
		BestAsk:  ob.BestAsk(),
		TickSize: ob.TickSize,
	}
}

// ParsePrice parses a venue price string. Malformed input yields zero.
func ParsePrice(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
