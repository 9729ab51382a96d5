package polymarket

// clob.go: endpoints públicos del CLOB (book, neg-risk).

import (
	"context"
	"fmt"
	"net/url"

	"github.com/alejandrodnm/pegbot/internal/domain"
)

const (
	bookPath    = "/book"
	negRiskPath = "/neg-risk"
)

// FetchOrderBook obtiene el book de un token. El tick size y el flag neg-risk
// vienen en la misma respuesta.
func (c *Client) FetchOrderBook(ctx context.Context, tokenID string) (domain.OrderBook, bool, error) {
	u := fmt.Sprintf("%s%s?token_id=%s", c.clobBase, bookPath, url.QueryEscape(tokenID))

	var resp orderBookResponse
	if err := c.get(ctx, c.booksLimiter, u, &resp); err != nil {
		return domain.OrderBook{}, false, fmt.Errorf("clob.FetchOrderBook %s: %w", tokenID, err)
	}
	book := mapOrderBook(resp)
	if book.TokenID == "" {
		book.TokenID = tokenID
	}
	return book, resp.NegRisk, nil
}

// IsNegRisk consulta si el token usa el NegRisk exchange.
func (c *Client) IsNegRisk(ctx context.Context, tokenID string) (bool, error) {
	u := fmt.Sprintf("%s%s?token_id=%s", c.clobBase, negRiskPath, url.QueryEscape(tokenID))

	var resp negRiskResponse
	if err := c.get(ctx, c.clobLimiter, u, &resp); err != nil {
		return false, fmt.Errorf("clob.IsNegRisk %s: %w", tokenID, err)
	}
	return resp.NegRisk, nil
}

// splitBatches divide items en slices de tamaño máximo size.
func splitBatches[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	batches := make([][]T, 0, (len(items)+size-1)/max(size, 1))
	for i := 0; i < len(items); i += size {
		end := min(i+size, len(items))
		batches = append(batches, items[i:end])
	}
	return batches
}
