package polymarket

// venue.go: ports.Venue sobre el CLOB de Polymarket.
//
// Cancel y Place son llamadas batch únicas. El resultado por item se decide
// por el flag explícito de la respuesta; un id ausente es un fallo.
// Place nunca se reintenta: un 5xx tras aceptar la orden duplicaría la posición.

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/alejandrodnm/pegbot/internal/domain"
)

const (
	orderPath  = "/data/order/"
	ordersPath = "/orders"

	// maxPlaceBatch es el máximo de órdenes por POST /orders.
	maxPlaceBatch = 15
)

// Venue implements ports.Venue for one account.
type Venue struct {
	auth *AuthClient

	mu      sync.Mutex
	negRisk map[string]bool // tokenID → neg-risk exchange, learnt from /book
}

// NewVenue wraps an authenticated client.
func NewVenue(auth *AuthClient) *Venue {
	return &Venue{auth: auth, negRisk: make(map[string]bool)}
}

// Status returns the ledger view of a CLOB order.
func (v *Venue) Status(ctx context.Context, venueOrderID string) (domain.OrderStatus, error) {
	if err := v.auth.EnsureCreds(ctx); err != nil {
		return "", fmt.Errorf("polymarket.Status: creds: %w", venueError("status", err))
	}

	var resp openOrder
	path := orderPath + url.PathEscape(venueOrderID)
	if err := v.auth.doL2(ctx, maxRetries, http.MethodGet, path, nil, &resp); err != nil {
		var ae *apiError
		if errors.As(err, &ae) && ae.Status == http.StatusNotFound {
			return v.unknownOrder(venueOrderID), nil
		}
		return "", fmt.Errorf("polymarket.Status %s: %w", venueOrderID, venueError("status", err))
	}
	if resp.ID == "" {
		return v.unknownOrder(venueOrderID), nil
	}
	return mapOrderStatus(resp.Status), nil
}

// unknownOrder: el CLOB purga las órdenes canceladas, así que una orden que
// ya no existe se reporta como cancelada. Si no, cada ciclo intentaría
// cancelarla otra vez.
func (v *Venue) unknownOrder(venueOrderID string) domain.OrderStatus {
	slog.Info("venue: order unknown to the CLOB, treating as canceled", "venue_id", venueOrderID)
	return domain.StatusCanceled
}

// Quote returns the top of book for tokenID. side is unused: the CLOB book
// carries both sides.
func (v *Venue) Quote(ctx context.Context, _, tokenID string, _ domain.Side) (domain.Quote, error) {
	book, negRisk, err := v.auth.FetchOrderBook(ctx, tokenID)
	if err != nil {
		return domain.Quote{}, venueError("quote", err)
	}
	v.mu.Lock()
	v.negRisk[tokenID] = negRisk
	v.mu.Unlock()
	return book.Quote(), nil
}

// Cancel cancels ids in one DELETE /orders call.
func (v *Venue) Cancel(ctx context.Context, venueOrderIDs []string) ([]domain.CancelResult, error) {
	if len(venueOrderIDs) == 0 {
		return nil, nil
	}
	if err := v.auth.EnsureCreds(ctx); err != nil {
		return nil, fmt.Errorf("polymarket.Cancel: creds: %w", venueError("cancel", err))
	}

	var resp cancelResponse
	if err := v.auth.doL2(ctx, maxRetries, http.MethodDelete, ordersPath, venueOrderIDs, &resp); err != nil {
		return nil, fmt.Errorf("polymarket.Cancel: %w", venueError("cancel", err))
	}

	canceled := make(map[string]bool, len(resp.Canceled))
	for _, id := range resp.Canceled {
		canceled[id] = true
	}

	results := make([]domain.CancelResult, 0, len(venueOrderIDs))
	for _, id := range venueOrderIDs {
		switch reason, rejected := resp.NotCanceled[id]; {
		case canceled[id]:
			results = append(results, domain.CancelResult{VenueOrderID: id, OK: true})
		case rejected:
			results = append(results, domain.CancelResult{VenueOrderID: id, Code: "not_canceled", Message: reason})
		default:
			results = append(results, domain.CancelResult{VenueOrderID: id, Code: "missing_result", Message: "id absent from cancel response"})
		}
	}
	return results, nil
}

// Place signs every spec and submits them in POST /orders batches of at most
// maxPlaceBatch. Results are positional. A spec that cannot be signed fails
// alone; a batch whose request fails fails as a whole.
func (v *Venue) Place(ctx context.Context, specs []domain.OrderSpec) ([]domain.PlaceResult, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	if err := v.auth.EnsureCreds(ctx); err != nil {
		return nil, fmt.Errorf("polymarket.Place: creds: %w", venueError("place", err))
	}
	owner := v.auth.credentials().APIKey

	results := make([]domain.PlaceResult, len(specs))
	type signedItem struct {
		idx int
		req orderRequest
	}
	var items []signedItem
	for i, spec := range specs {
		req, err := v.signedRequest(ctx, spec, owner)
		if err != nil {
			results[i] = domain.PlaceResult{Code: "sign_failed", Message: err.Error()}
			continue
		}
		items = append(items, signedItem{idx: i, req: req})
	}

	for _, batch := range splitBatches(items, maxPlaceBatch) {
		body := make([]orderRequest, len(batch))
		for i, it := range batch {
			body[i] = it.req
		}

		var resp []orderResponse
		if err := v.auth.doL2(ctx, 0, http.MethodPost, ordersPath, body, &resp); err != nil {
			ve := venueError("place", err)
			slog.Warn("venue: place batch failed", "orders", len(batch), "err", ve)
			for _, it := range batch {
				results[it.idx] = domain.PlaceResult{Code: domain.ErrorCode(ve), Message: ve.Error()}
			}
			continue
		}

		for i, it := range batch {
			if i >= len(resp) {
				results[it.idx] = domain.PlaceResult{Code: "missing_result", Message: "item absent from place response"}
				continue
			}
			r := resp[i]
			if !r.Success || r.OrderID == "" || r.ErrorMsg != "" {
				results[it.idx] = domain.PlaceResult{Code: "rejected", Message: r.ErrorMsg}
				continue
			}
			results[it.idx] = domain.PlaceResult{OK: true, VenueOrderID: r.OrderID}
		}
	}
	return results, nil
}

func (v *Venue) signedRequest(ctx context.Context, spec domain.OrderSpec, owner string) (orderRequest, error) {
	negRisk, err := v.isNegRisk(ctx, spec.TokenID)
	if err != nil {
		return orderRequest{}, err
	}
	signed, err := v.auth.buildSignedOrder(spec, negRisk)
	if err != nil {
		return orderRequest{}, err
	}
	return orderRequest{
		Order: orderBody{
			Salt:          json.Number(signed.Order.Salt.String()),
			Maker:         signed.Order.Maker.Hex(),
			Signer:        signed.Order.Signer.Hex(),
			Taker:         signed.Order.Taker.Hex(),
			TokenID:       spec.TokenID,
			MakerAmount:   signed.Order.MakerAmount.String(),
			TakerAmount:   signed.Order.TakerAmount.String(),
			Expiration:    signed.Order.Expiration.String(),
			Nonce:         signed.Order.Nonce.String(),
			FeeRateBps:    signed.Order.FeeRateBps.String(),
			Side:          string(spec.Side),
			SignatureType: int(signed.Order.SignatureType.Int64()),
			Signature:     "0x" + hex.EncodeToString(signed.Signature),
		},
		Owner:     owner,
		OrderType: "GTC",
	}, nil
}

// isNegRisk uses the flag learnt from the last quote, falling back to the
// /neg-risk endpoint.
func (v *Venue) isNegRisk(ctx context.Context, tokenID string) (bool, error) {
	v.mu.Lock()
	nr, ok := v.negRisk[tokenID]
	v.mu.Unlock()
	if ok {
		return nr, nil
	}
	nr, err := v.auth.IsNegRisk(ctx, tokenID)
	if err != nil {
		return false, err
	}
	v.mu.Lock()
	v.negRisk[tokenID] = nr
	v.mu.Unlock()
	return nr, nil
}
