package notify

import (
	"fmt"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/pegbot/internal/domain"
)

// NotificationRow es una fila del outbox lista para imprimir.
type NotificationRow struct {
	CreatedAt string
	AccountID string
	Kind      domain.EventKind
	OrderID   string
	Delivered bool
}

// ReportInput agrupa los datos del reporte de estado.
type ReportInput struct {
	Accounts      []domain.Account
	Pending       []domain.Order
	Runs          []domain.CycleStats
	Notifications []NotificationRow
}

// PrintReport imprime el estado del ledger: cuentas, órdenes vivas,
// últimos ciclos y últimas notificaciones.
func (c *Console) PrintReport(in ReportInput) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "\n── ACCOUNTS (%d) ──\n", len(in.Accounts))
	if len(in.Accounts) == 0 {
		fmt.Fprintln(c.out, "  (none)")
	} else {
		table := tablewriter.NewWriter(c.out)
		table.Header("Account", "Label", "Health", "Checked")
		for _, a := range in.Accounts {
			checked := "-"
			if !a.CheckedAt.IsZero() {
				checked = a.CheckedAt.Local().Format("2006-01-02 15:04")
			}
			table.Append(a.ID, a.Label, string(a.Health), checked)
		}
		table.Render()
	}

	fmt.Fprintf(c.out, "\n── PENDING ORDERS (%d) ──\n", len(in.Pending))
	if len(in.Pending) == 0 {
		fmt.Fprintln(c.out, "  (none)")
	} else {
		now := c.now()
		table := tablewriter.NewWriter(c.out)
		table.Header("Order", "Account", "Market", "Side", "Offset", "Price", "Amount", "Age")
		for _, o := range in.Pending {
			table.Append(
				shortID(o.ID),
				shortID(o.AccountID),
				truncate(o.MarketRef(), 30),
				string(o.Side),
				fmt.Sprintf("%d", o.OffsetTicks),
				domain.Cents(o.CurrentPrice),
				"$"+o.Amount.StringFixed(2),
				o.Age(now).Truncate(time.Minute).String(),
			)
		}
		table.Render()
	}

	fmt.Fprintf(c.out, "\n── RECENT CYCLES (%d) ──\n", len(in.Runs))
	if len(in.Runs) == 0 {
		fmt.Fprintln(c.out, "  (none)")
	} else {
		table := tablewriter.NewWriter(c.out)
		table.Header("Started", "Account", "Checked", "Filled", "Moved", "Expired", "CancelErr", "PlaceErr", "Took", "Note")
		for _, r := range in.Runs {
			note := r.Err
			if r.Aborted && note == "" {
				note = "aborted"
			}
			table.Append(
				r.StartedAt.Local().Format("01-02 15:04:05"),
				shortID(r.AccountID),
				fmt.Sprintf("%d", r.Checked),
				fmt.Sprintf("%d", r.Filled),
				fmt.Sprintf("%d", r.Repositioned),
				fmt.Sprintf("%d", r.Expired),
				fmt.Sprintf("%d", r.CancelErrors),
				fmt.Sprintf("%d", r.PlaceErrors),
				r.Duration.Round(time.Millisecond).String(),
				truncate(note, 30),
			)
		}
		table.Render()
	}

	fmt.Fprintf(c.out, "\n── RECENT NOTIFICATIONS (%d) ──\n", len(in.Notifications))
	if len(in.Notifications) == 0 {
		fmt.Fprintln(c.out, "  (none)")
	} else {
		table := tablewriter.NewWriter(c.out)
		table.Header("At", "Account", "Kind", "Order", "Delivered")
		for _, n := range in.Notifications {
			delivered := "no"
			if n.Delivered {
				delivered = "yes"
			}
			table.Append(n.CreatedAt, shortID(n.AccountID), string(n.Kind), shortID(n.OrderID), delivered)
		}
		table.Render()
	}
	fmt.Fprintln(c.out)
}

// PrintCycle imprime el resumen de un ciclo (modo -once).
func (c *Console) PrintCycle(st domain.CycleStats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "checked:%d filled:%d canceled_ext:%d expired:%d moved:%d cancel_err:%d place_err:%d",
		st.Checked, st.Filled, st.CanceledExt, st.Expired, st.Repositioned, st.CancelErrors, st.PlaceErrors)
	if st.Aborted {
		fmt.Fprint(c.out, " (aborted)")
	}
	fmt.Fprintln(c.out)
}
