package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/alejandrodnm/pegbot/internal/domain"
	"github.com/alejandrodnm/pegbot/internal/ports"
)

// ErrNotPending is returned by MarkStatus when the row is missing or already
// terminal.
var ErrNotPending = errors.New("order not pending")

const orderColumns = `id, account_id, position_id, replaces_id, venue_order_id,
	market_id, token_id, token_name, side, offset_ticks,
	current_price, target_price, amount, status, reposition_threshold_cents,
	created_at, placed_at`

// SaveOrder inserts a new pending row. Missing ids and timestamps are filled
// in; a second pending row for the same position is rejected by the schema.
func (s *SQLiteStorage) SaveOrder(ctx context.Context, o domain.Order) error {
	now := s.now()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.PositionID == "" {
		o.PositionID = o.ID
	}
	if o.Status == "" {
		o.Status = domain.StatusPending
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	if o.PlacedAt.IsZero() {
		o.PlacedAt = now
	}
	if !o.RepositionThresholdCents.IsPositive() {
		o.RepositionThresholdCents = domain.DefaultThresholdCents
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		o.ID, o.AccountID, o.PositionID, o.ReplacesID, o.VenueOrderID,
		o.MarketID, o.TokenID, o.TokenName, string(o.Side), o.OffsetTicks,
		o.CurrentPrice, o.TargetPrice, o.Amount, string(o.Status), o.RepositionThresholdCents,
		formatTime(o.CreatedAt), formatTime(o.PlacedAt), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveOrder %s: %w", o.ID, err)
	}
	return nil
}

// PendingOrders returns pending rows ordered by account then position age.
func (s *SQLiteStorage) PendingOrders(ctx context.Context, f ports.OrderFilter) ([]domain.Order, error) {
	where := []string{"status = 'pending'"}
	var args []any
	if f.AccountID != "" {
		where = append(where, "account_id = ?")
		args = append(args, f.AccountID)
	}
	if f.MarketID != "" {
		where = append(where, "market_id = ?")
		args = append(args, f.MarketID)
	}
	orders, err := s.queryOrders(ctx, "WHERE "+strings.Join(where, " AND "), args...)
	if err != nil {
		return nil, fmt.Errorf("storage.PendingOrders: %w", err)
	}
	return orders, nil
}

// PendingOrdersByAccount groups PendingOrders by account id.
func (s *SQLiteStorage) PendingOrdersByAccount(ctx context.Context, f ports.OrderFilter) (map[string][]domain.Order, error) {
	orders, err := s.PendingOrders(ctx, f)
	if err != nil {
		return nil, err
	}
	grouped := make(map[string][]domain.Order)
	for _, o := range orders {
		grouped[o.AccountID] = append(grouped[o.AccountID], o)
	}
	return grouped, nil
}

// MarkStatus moves a pending row to a terminal status. Terminal rows are
// never touched again.
func (s *SQLiteStorage) MarkStatus(ctx context.Context, orderID string, status domain.OrderStatus) error {
	if !status.Terminal() {
		return fmt.Errorf("storage.MarkStatus %s: %q is not terminal", orderID, status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = ? WHERE id = ? AND status = 'pending'`,
		string(status), formatTime(s.now()), orderID)
	if err != nil {
		return fmt.Errorf("storage.MarkStatus %s: %w", orderID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage.MarkStatus %s: rows affected: %w", orderID, err)
	}
	if n == 0 {
		return fmt.Errorf("storage.MarkStatus %s: %w", orderID, ErrNotPending)
	}
	return nil
}

// PositionHistory returns every row of a logical position, oldest first.
func (s *SQLiteStorage) PositionHistory(ctx context.Context, positionID string) ([]domain.Order, error) {
	orders, err := s.queryOrders(ctx, "WHERE position_id = ?", positionID)
	if err != nil {
		return nil, fmt.Errorf("storage.PositionHistory %s: %w", positionID, err)
	}
	return orders, nil
}

func (s *SQLiteStorage) queryOrders(ctx context.Context, where string, args ...any) ([]domain.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders ` + where + ` ORDER BY account_id, created_at, placed_at, id`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func scanOrder(rows *sql.Rows) (domain.Order, error) {
	var (
		o                   domain.Order
		side, status        string
		createdAt, placedAt string
	)
	err := rows.Scan(
		&o.ID, &o.AccountID, &o.PositionID, &o.ReplacesID, &o.VenueOrderID,
		&o.MarketID, &o.TokenID, &o.TokenName, &side, &o.OffsetTicks,
		&o.CurrentPrice, &o.TargetPrice, &o.Amount, &status, &o.RepositionThresholdCents,
		&createdAt, &placedAt,
	)
	if err != nil {
		return o, err
	}
	o.Side = domain.Side(side)
	o.Status = domain.OrderStatus(status)
	o.CreatedAt = parseTime(createdAt)
	o.PlacedAt = parseTime(placedAt)
	return o, nil
}
