package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventKind names a user-facing notification payload.
type EventKind string

const (
	EventPriceChangePending EventKind = "price_change_pending"
	EventOrderUpdated       EventKind = "order_updated"
	EventOrderFilled        EventKind = "order_filled"
	EventCancelError        EventKind = "cancel_error"
	EventPlaceError         EventKind = "place_error"
	EventOrderExpired       EventKind = "order_expired"
)

// Event is delivered to the owner of AccountID. Only the fields relevant to
// Kind are set:
//
//	price_change_pending  OrderID, OldPrice, NewPrice
//	order_updated         OrderID, NewVenueID, NewPrice
//	order_filled          OrderID, FillPrice, MarketRef
//	cancel_error          OrderID, Code, Message
//	place_error           Spec, Code, Message
//	order_expired         OrderID, MarketRef, Age
type Event struct {
	Kind      EventKind
	AccountID string
	OrderID   string
	MarketRef string
	Side      Side

	OldPrice   decimal.Decimal
	NewPrice   decimal.Decimal
	FillPrice  decimal.Decimal
	NewVenueID string

	Spec    *OrderSpec
	Code    string
	Message string
	Age     time.Duration

	At time.Time
}

// PriceChangePending announces a reposition the engine is about to attempt.
func PriceChangePending(o Order, newPrice decimal.Decimal) Event {
	return Event{
		Kind:      EventPriceChangePending,
		AccountID: o.AccountID,
		OrderID:   o.ID,
		MarketRef: o.MarketRef(),
		Side:      o.Side,
		OldPrice:  o.CurrentPrice,
		NewPrice:  newPrice,
		At:        time.Now().UTC(),
	}
}

// OrderUpdated reports a completed reposition. OrderID is the replaced row.
func OrderUpdated(old Order, replacement Order) Event {
	return Event{
		Kind:       EventOrderUpdated,
		AccountID:  old.AccountID,
		OrderID:    old.ID,
		MarketRef:  old.MarketRef(),
		Side:       old.Side,
		OldPrice:   old.CurrentPrice,
		NewPrice:   replacement.CurrentPrice,
		NewVenueID: replacement.VenueOrderID,
		At:         time.Now().UTC(),
	}
}

// OrderFilled reports a venue fill.
func OrderFilled(o Order) Event {
	return Event{
		Kind:      EventOrderFilled,
		AccountID: o.AccountID,
		OrderID:   o.ID,
		MarketRef: o.MarketRef(),
		Side:      o.Side,
		FillPrice: o.CurrentPrice,
		At:        time.Now().UTC(),
	}
}

// CancelError reports a cancel the venue did not confirm.
func CancelError(o Order, code, message string) Event {
	return Event{
		Kind:      EventCancelError,
		AccountID: o.AccountID,
		OrderID:   o.ID,
		MarketRef: o.MarketRef(),
		Side:      o.Side,
		Code:      code,
		Message:   message,
		At:        time.Now().UTC(),
	}
}

// PlaceError reports a replacement the venue rejected after its cancel succeeded.
func PlaceError(spec OrderSpec, code, message string) Event {
	s := spec
	return Event{
		Kind:      EventPlaceError,
		AccountID: spec.AccountID,
		OrderID:   spec.ReplacesID,
		MarketRef: spec.MarketID,
		Side:      spec.Side,
		NewPrice:  spec.Price,
		Spec:      &s,
		Code:      code,
		Message:   message,
		At:        time.Now().UTC(),
	}
}

// OrderExpired reports a position cancelled for age.
func OrderExpired(o Order, age time.Duration) Event {
	return Event{
		Kind:      EventOrderExpired,
		AccountID: o.AccountID,
		OrderID:   o.ID,
		MarketRef: o.MarketRef(),
		Side:      o.Side,
		OldPrice:  o.CurrentPrice,
		Age:       age,
		At:        time.Now().UTC(),
	}
}
