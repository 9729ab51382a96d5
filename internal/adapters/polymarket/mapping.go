package polymarket

import (
	"strings"

	"github.com/alejandrodnm/pegbot/internal/domain"
)

// mapOrderBook convierte la respuesta de /book a domain.OrderBook.
func mapOrderBook(r orderBookResponse) domain.OrderBook {
	return domain.OrderBook{
		TokenID:  r.AssetID,
		Bids:     mapEntries(r.Bids),
		Asks:     mapEntries(r.Asks),
		TickSize: domain.ParsePrice(r.TickSize),
	}
}

func mapEntries(raw []bookEntryRaw) []domain.BookEntry {
	entries := make([]domain.BookEntry, 0, len(raw))
	for _, e := range raw {
		entries = append(entries, domain.BookEntry{
			Price: domain.ParsePrice(e.Price),
			Size:  domain.ParsePrice(e.Size),
		})
	}
	return entries
}

// mapOrderStatus traduce el status del CLOB al ciclo de vida del ledger.
// LIVE y los estados intermedios (DELAYED, UNMATCHED) siguen pendientes.
func mapOrderStatus(status string) domain.OrderStatus {
	upper := strings.ToUpper(status)
	switch {
	case strings.Contains(upper, "MATCHED") && !strings.Contains(upper, "UNMATCHED"):
		return domain.StatusFinished
	case strings.Contains(upper, "CANCEL") || strings.Contains(upper, "INVALID"):
		return domain.StatusCanceled
	}
	return domain.StatusPending
}
