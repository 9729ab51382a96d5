package storage

// outbox.go: notification outbox. El engine escribe eventos aquí y el canal
// de entrega externo los consume marcando delivered_at.

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/alejandrodnm/pegbot/internal/domain"
)

// eventPayload es la forma JSON persistida de un domain.Event. Los precios se
// guardan como strings decimales.
type eventPayload struct {
	Kind       string            `json:"kind"`
	AccountID  string            `json:"account_id"`
	OrderID    string            `json:"order_id,omitempty"`
	MarketRef  string            `json:"market_ref,omitempty"`
	Side       string            `json:"side,omitempty"`
	OldPrice   string            `json:"old_price,omitempty"`
	NewPrice   string            `json:"new_price,omitempty"`
	FillPrice  string            `json:"fill_price,omitempty"`
	NewVenueID string            `json:"new_venue_id,omitempty"`
	Spec       *orderSpecPayload `json:"order_spec,omitempty"`
	Code       string            `json:"code,omitempty"`
	Message    string            `json:"message,omitempty"`
	AgeSeconds int64             `json:"age_seconds,omitempty"`
	At         string            `json:"at"`
}

type orderSpecPayload struct {
	ReplacesID string `json:"replaces_id"`
	PositionID string `json:"position_id"`
	MarketID   string `json:"market_id"`
	TokenID    string `json:"token_id"`
	Side       string `json:"side"`
	Price      string `json:"price"`
	Amount     string `json:"amount"`
}

// Notification is one outbox row.
type Notification struct {
	ID        int64
	AccountID string
	Kind      domain.EventKind
	OrderID   string
	Payload   string
	CreatedAt string
	Delivered bool
}

// Notify implements ports.Notifier by appending the event to the outbox.
func (s *SQLiteStorage) Notify(ctx context.Context, ev domain.Event) error {
	at := ev.At
	if at.IsZero() {
		at = s.now()
	}
	payload, err := json.Marshal(toPayload(ev, formatTime(at)))
	if err != nil {
		return fmt.Errorf("storage.Notify: marshal: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (account_id, kind, order_id, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		ev.AccountID, string(ev.Kind), ev.OrderID, string(payload), formatTime(at),
	); err != nil {
		return fmt.Errorf("storage.Notify: insert: %w", err)
	}
	return nil
}

// RecentNotifications returns the newest outbox rows first.
func (s *SQLiteStorage) RecentNotifications(ctx context.Context, limit int) ([]Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, kind, order_id, payload, created_at, delivered_at
		FROM notifications ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.RecentNotifications: query: %w", err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		var kind string
		var delivered sql.NullString
		if err := rows.Scan(&n.ID, &n.AccountID, &kind, &n.OrderID, &n.Payload, &n.CreatedAt, &delivered); err != nil {
			return nil, fmt.Errorf("storage.RecentNotifications: scan: %w", err)
		}
		n.Kind = domain.EventKind(kind)
		n.Delivered = delivered.Valid
		out = append(out, n)
	}
	return out, rows.Err()
}

func toPayload(ev domain.Event, at string) eventPayload {
	p := eventPayload{
		Kind:       string(ev.Kind),
		AccountID:  ev.AccountID,
		OrderID:    ev.OrderID,
		MarketRef:  ev.MarketRef,
		Side:       string(ev.Side),
		NewVenueID: ev.NewVenueID,
		Code:       ev.Code,
		Message:    ev.Message,
		AgeSeconds: int64(ev.Age.Seconds()),
		At:         at,
	}
	if !ev.OldPrice.IsZero() {
		p.OldPrice = ev.OldPrice.String()
	}
	if !ev.NewPrice.IsZero() {
		p.NewPrice = ev.NewPrice.String()
	}
	if !ev.FillPrice.IsZero() {
		p.FillPrice = ev.FillPrice.String()
	}
	if ev.Spec != nil {
		p.Spec = &orderSpecPayload{
			ReplacesID: ev.Spec.ReplacesID,
			PositionID: ev.Spec.PositionID,
			MarketID:   ev.Spec.MarketID,
			TokenID:    ev.Spec.TokenID,
			Side:       string(ev.Spec.Side),
			Price:      ev.Spec.Price.String(),
			Amount:     ev.Spec.Amount.String(),
		}
	}
	return p
}
