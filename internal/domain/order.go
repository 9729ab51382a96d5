package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a resting limit order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderStatus is the ledger lifecycle of a pegged order row.
type OrderStatus string

const (
	StatusPending  OrderStatus = "pending"
	StatusFinished OrderStatus = "finished"
	StatusCanceled OrderStatus = "canceled"
)

// Terminal reports whether no further transition is allowed for the row.
func (s OrderStatus) Terminal() bool {
	return s == StatusFinished || s == StatusCanceled
}

// Order is one ledger row backing a logical resting position.
// A reposition cancels the row and writes a new one with the same PositionID.
type Order struct {
	ID           string // local UUID
	AccountID    string
	PositionID   string // logical position, shared by every replacement
	ReplacesID   string // row this one replaced, empty for the first row
	VenueOrderID string
	MarketID     string
	TokenID      string
	TokenName    string // YES / NO, display only
	Side         Side
	OffsetTicks  int // fixed at creation, never mutated by the engine

	CurrentPrice decimal.Decimal // price the venue order rests at
	TargetPrice  decimal.Decimal
	Amount       decimal.Decimal // quote-token notional

	Status                   OrderStatus
	RepositionThresholdCents decimal.Decimal

	CreatedAt time.Time // creation of the logical position
	PlacedAt  time.Time // placement of this row's venue order
}

// Age returns how long the logical position has existed.
func (o Order) Age(now time.Time) time.Duration {
	if o.CreatedAt.IsZero() {
		return 0
	}
	return now.Sub(o.CreatedAt)
}

// MarketRef is a short human reference used in notifications.
func (o Order) MarketRef() string {
	ref := o.MarketID
	if o.TokenName != "" {
		ref += "/" + o.TokenName
	}
	return ref
}

// OrderSpec describes a replacement order to submit to the venue.
type OrderSpec struct {
	ReplacesID string // ledger row whose cancel made room for this spec
	PositionID string
	AccountID  string
	MarketID   string
	TokenID    string
	TokenName  string
	Side       Side
	Price      decimal.Decimal
	Amount     decimal.Decimal
}

// SpecFor builds the replacement spec for order at price.
func SpecFor(o Order, price decimal.Decimal) OrderSpec {
	return OrderSpec{
		ReplacesID: o.ID,
		PositionID: o.PositionID,
		AccountID:  o.AccountID,
		MarketID:   o.MarketID,
		TokenID:    o.TokenID,
		TokenName:  o.TokenName,
		Side:       o.Side,
		Price:      price,
		Amount:     o.Amount,
	}
}

// Replacement returns the pending row written after spec was placed as venueOrderID.
// Creation time and the immutable parameters come from the replaced order.
func Replacement(old Order, spec OrderSpec, id, venueOrderID string, placedAt time.Time) Order {
	return Order{
		ID:                       id,
		AccountID:                old.AccountID,
		PositionID:               old.PositionID,
		ReplacesID:               old.ID,
		VenueOrderID:             venueOrderID,
		MarketID:                 old.MarketID,
		TokenID:                  old.TokenID,
		TokenName:                old.TokenName,
		Side:                     old.Side,
		OffsetTicks:              old.OffsetTicks,
		CurrentPrice:             spec.Price,
		TargetPrice:              spec.Price,
		Amount:                   old.Amount,
		Status:                   StatusPending,
		RepositionThresholdCents: old.RepositionThresholdCents,
		CreatedAt:                old.CreatedAt,
		PlacedAt:                 placedAt,
	}
}

// Plan is the per-account reposition set of one cycle.
// ToCancel[i] is replaced by ToPlace[i]. ToExpire rows are cancelled in the
// same batch and never replaced.
type Plan struct {
	ToCancel []Order
	ToPlace  []OrderSpec
	ToExpire []Order
}

// Add appends a reposition leg.
func (p *Plan) Add(o Order, target decimal.Decimal) {
	p.ToCancel = append(p.ToCancel, o)
	p.ToPlace = append(p.ToPlace, SpecFor(o, target))
}

// Expire appends a position to be cancelled for age.
func (p *Plan) Expire(o Order) {
	p.ToExpire = append(p.ToExpire, o)
}

// Empty reports whether the plan moves nothing.
func (p Plan) Empty() bool { return len(p.ToCancel) == 0 && len(p.ToExpire) == 0 }

// CancelResult is the venue's verdict for one id of a cancel batch.
type CancelResult struct {
	VenueOrderID string
	OK           bool
	Code         string
	Message      string
}

// PlaceResult is the venue's verdict for one spec of a place batch,
// in the same position as the spec that produced it.
type PlaceResult struct {
	OK           bool
	VenueOrderID string
	Code         string
	Message      string
}
