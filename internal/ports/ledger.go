package ports

import (
	"context"

	"github.com/alejandrodnm/pegbot/internal/domain"
)

// OrderFilter narrows pending-order reads. Zero values match everything.
type OrderFilter struct {
	AccountID string
	MarketID  string
}

// Ledger is the durable record of pegged orders.
type Ledger interface {
	// SaveOrder inserts a new pending row.
	SaveOrder(ctx context.Context, order domain.Order) error

	// PendingOrders returns pending rows oldest first.
	PendingOrders(ctx context.Context, filter OrderFilter) ([]domain.Order, error)

	// PendingOrdersByAccount groups pending rows by account id.
	PendingOrdersByAccount(ctx context.Context, filter OrderFilter) (map[string][]domain.Order, error)

	// MarkStatus moves a pending row to a terminal status. Rows that are no
	// longer pending are left untouched and reported with an error.
	MarkStatus(ctx context.Context, orderID string, status domain.OrderStatus) error
}
