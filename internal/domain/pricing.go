package domain

import "github.com/shopspring/decimal"

// Price bounds accepted by binary-outcome venues.
var (
	MinPrice = decimal.RequireFromString("0.001")
	MaxPrice = decimal.RequireFromString("0.999")

	DefaultTickSize       = decimal.RequireFromString("0.001")
	DefaultThresholdCents = decimal.RequireFromString("0.5")
	hundred               = decimal.NewFromInt(100)
)

// Quote is a fresh top-of-book snapshot. Never persisted.
type Quote struct {
	BestBid  decimal.Decimal
	BestAsk  decimal.Decimal
	TickSize decimal.Decimal
}

// Reference returns the price the order side is pegged to:
// best bid for BUY, best ask for SELL.
func (q Quote) Reference(side Side) decimal.Decimal {
	if side == SideSell {
		return q.BestAsk
	}
	return q.BestBid
}

// Tick returns the quote tick size, falling back to def when the venue omitted it.
func (q Quote) Tick(def decimal.Decimal) decimal.Decimal {
	if q.TickSize.IsPositive() {
		return q.TickSize
	}
	if def.IsPositive() {
		return def
	}
	return DefaultTickSize
}

// TargetPrice computes the pegged price: BUY rests offsetTicks below the
// reference, SELL rests offsetTicks above it. The result is rounded to the
// tick and clamped to [MinPrice, MaxPrice].
func TargetPrice(reference decimal.Decimal, side Side, offsetTicks int, tick decimal.Decimal) decimal.Decimal {
	offset := tick.Mul(decimal.NewFromInt(int64(offsetTicks)))
	var target decimal.Decimal
	if side == SideSell {
		target = reference.Add(offset)
	} else {
		target = reference.Sub(offset)
	}
	return ClampPrice(RoundToTick(target, tick))
}

// RoundToTick rounds price to the nearest multiple of tick.
func RoundToTick(price, tick decimal.Decimal) decimal.Decimal {
	if !tick.IsPositive() {
		return price
	}
	return price.Div(tick).Round(0).Mul(tick)
}

// ClampPrice bounds price to the venue's accepted range.
func ClampPrice(price decimal.Decimal) decimal.Decimal {
	if price.LessThan(MinPrice) {
		return MinPrice
	}
	if price.GreaterThan(MaxPrice) {
		return MaxPrice
	}
	return price
}

// DeltaCents is |a - b| expressed in cents of the quote token.
func DeltaCents(a, b decimal.Decimal) decimal.Decimal {
	return a.Sub(b).Abs().Mul(hundred)
}

// Cents converts a price to cents for display.
func Cents(p decimal.Decimal) string {
	return p.Mul(hundred).StringFixed(2) + "¢"
}

// NeedsReposition reports whether moving from current to target is worth a
// cancel/place pair. The boundary is inclusive; an unchanged price never moves.
func NeedsReposition(current, target, thresholdCents decimal.Decimal) bool {
	delta := DeltaCents(target, current)
	if delta.IsZero() {
		return false
	}
	return delta.GreaterThanOrEqual(thresholdCents)
}
