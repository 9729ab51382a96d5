package paper

// venue.go: venue simulado para modo paper. Las cotizaciones son reales
// (book público del CLOB); las órdenes viven en memoria y se consideran
// ejecutadas cuando el lado contrario del book cruza su precio.

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/pegbot/internal/domain"
)

// BookSource entrega el book público de un token. *polymarket.Client la implementa.
type BookSource interface {
	FetchOrderBook(ctx context.Context, tokenID string) (domain.OrderBook, bool, error)
}

type virtualOrder struct {
	tokenID string
	side    domain.Side
	price   decimal.Decimal
	amount  decimal.Decimal
	status  domain.OrderStatus
}

// Venue implementa ports.Venue sin tocar fondos reales.
type Venue struct {
	books BookSource

	mu     sync.Mutex
	orders map[string]*virtualOrder
}

// NewVenue crea un venue paper sobre la fuente de books dada.
func NewVenue(books BookSource) *Venue {
	return &Venue{books: books, orders: make(map[string]*virtualOrder)}
}

// Status consulta el book y marca la orden como ejecutada si el precio cruzó.
// Las órdenes que este proceso no colocó se tratan como vivas.
func (v *Venue) Status(ctx context.Context, venueOrderID string) (domain.OrderStatus, error) {
	v.mu.Lock()
	o, ok := v.orders[venueOrderID]
	if !ok {
		v.mu.Unlock()
		return domain.StatusPending, nil
	}
	if o.status != domain.StatusPending {
		st := o.status
		v.mu.Unlock()
		return st, nil
	}
	tokenID := o.tokenID
	v.mu.Unlock()

	book, _, err := v.books.FetchOrderBook(ctx, tokenID)
	if err != nil {
		return "", &domain.VenueError{Op: "status", Message: err.Error(), Transient: true}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if o.status == domain.StatusPending && crossed(o, book.Quote()) {
		o.status = domain.StatusFinished
	}
	return o.status, nil
}

// crossed: un BUY se ejecuta cuando el ask baja a su precio, un SELL cuando
// el bid sube al suyo.
func crossed(o *virtualOrder, q domain.Quote) bool {
	if o.side == domain.SideBuy {
		return q.BestAsk.IsPositive() && q.BestAsk.LessThanOrEqual(o.price)
	}
	return q.BestBid.IsPositive() && q.BestBid.GreaterThanOrEqual(o.price)
}

// Quote devuelve el top of book real del token.
func (v *Venue) Quote(ctx context.Context, _, tokenID string, _ domain.Side) (domain.Quote, error) {
	book, _, err := v.books.FetchOrderBook(ctx, tokenID)
	if err != nil {
		return domain.Quote{}, &domain.VenueError{Op: "quote", Message: err.Error(), Transient: true}
	}
	return book.Quote(), nil
}

// Cancel cancela cada id. Una orden ya ejecutada no se puede cancelar.
func (v *Venue) Cancel(_ context.Context, venueOrderIDs []string) ([]domain.CancelResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	results := make([]domain.CancelResult, 0, len(venueOrderIDs))
	for _, id := range venueOrderIDs {
		o, ok := v.orders[id]
		switch {
		case !ok:
			v.orders[id] = &virtualOrder{status: domain.StatusCanceled}
			results = append(results, domain.CancelResult{VenueOrderID: id, OK: true})
		case o.status == domain.StatusFinished:
			results = append(results, domain.CancelResult{VenueOrderID: id, Code: "ORDER_FILLED", Message: "order already matched"})
		case o.status == domain.StatusCanceled:
			results = append(results, domain.CancelResult{VenueOrderID: id, Code: "ALREADY_CANCELED", Message: "order already canceled"})
		default:
			o.status = domain.StatusCanceled
			results = append(results, domain.CancelResult{VenueOrderID: id, OK: true})
		}
	}
	return results, nil
}

// Place registra cada spec válida como orden virtual.
func (v *Venue) Place(_ context.Context, specs []domain.OrderSpec) ([]domain.PlaceResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	results := make([]domain.PlaceResult, len(specs))
	for i, spec := range specs {
		if err := validate(spec); err != nil {
			results[i] = domain.PlaceResult{Code: "invalid_order", Message: err.Error()}
			continue
		}
		id := "paper-" + uuid.NewString()
		v.orders[id] = &virtualOrder{
			tokenID: spec.TokenID,
			side:    spec.Side,
			price:   spec.Price,
			amount:  spec.Amount,
			status:  domain.StatusPending,
		}
		results[i] = domain.PlaceResult{OK: true, VenueOrderID: id}
	}
	return results, nil
}

func validate(spec domain.OrderSpec) error {
	if spec.TokenID == "" {
		return fmt.Errorf("missing token id")
	}
	if spec.Price.LessThan(domain.MinPrice) || spec.Price.GreaterThan(domain.MaxPrice) {
		return fmt.Errorf("price %s outside [%s, %s]", spec.Price, domain.MinPrice, domain.MaxPrice)
	}
	if !spec.Amount.IsPositive() {
		return fmt.Errorf("amount must be positive, got %s", spec.Amount)
	}
	return nil
}
