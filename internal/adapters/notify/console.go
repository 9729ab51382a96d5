package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/alejandrodnm/pegbot/internal/domain"
)

// Console implementa ports.Notifier escribiendo una línea por evento.
type Console struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole() *Console {
	return NewConsoleWriter(os.Stdout)
}

// NewConsoleWriter crea un notificador sobre un writer arbitrario (tests).
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w, now: time.Now}
}

// Notify imprime el evento. Los precios se muestran en centavos.
func (c *Console) Notify(_ context.Context, ev domain.Event) error {
	at := ev.At
	if at.IsZero() {
		at = c.now()
	}
	line := fmt.Sprintf("[%s] %-8s %-20s %s", at.Local().Format("15:04:05"),
		shortID(ev.AccountID), string(ev.Kind), describe(ev))

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintln(c.out, line)
	return err
}

// describe formatea los campos relevantes para cada tipo de evento.
func describe(ev domain.Event) string {
	switch ev.Kind {
	case domain.EventPriceChangePending:
		return fmt.Sprintf("%s %s %s → %s", shortID(ev.OrderID), sideMarket(ev),
			domain.Cents(ev.OldPrice), domain.Cents(ev.NewPrice))
	case domain.EventOrderUpdated:
		return fmt.Sprintf("%s %s now %s (venue %s)", shortID(ev.OrderID), sideMarket(ev),
			domain.Cents(ev.NewPrice), truncate(ev.NewVenueID, 12))
	case domain.EventOrderFilled:
		return fmt.Sprintf("%s %s filled at %s", shortID(ev.OrderID), sideMarket(ev), domain.Cents(ev.FillPrice))
	case domain.EventCancelError:
		return fmt.Sprintf("%s %s cancel failed [%s] %s", shortID(ev.OrderID), sideMarket(ev),
			ev.Code, truncate(ev.Message, 60))
	case domain.EventPlaceError:
		return fmt.Sprintf("%s %s place at %s failed [%s] %s", shortID(ev.OrderID), sideMarket(ev),
			domain.Cents(ev.NewPrice), ev.Code, truncate(ev.Message, 60))
	case domain.EventOrderExpired:
		return fmt.Sprintf("%s %s expired after %s", shortID(ev.OrderID), sideMarket(ev),
			ev.Age.Truncate(time.Minute))
	}
	return shortID(ev.OrderID)
}

func sideMarket(ev domain.Event) string {
	return strings.TrimSpace(string(ev.Side) + " " + ev.MarketRef)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
