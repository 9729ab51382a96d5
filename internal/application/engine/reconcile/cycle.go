package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/alejandrodnm/pegbot/internal/domain"
	"github.com/alejandrodnm/pegbot/internal/ports"
)

// Cycle runs one account's synchronization: evaluate, then execute.
// The caller guarantees that at most one Cycle.Run is active per account.
type Cycle struct {
	reconciler *Reconciler
	executor   *Executor
}

// NewCycle wires a Reconciler and an Executor over the same ledger and notifier.
func NewCycle(ledger ports.Ledger, notifier ports.Notifier, cfg Config) *Cycle {
	return &Cycle{
		reconciler: NewReconciler(ledger, notifier, cfg),
		executor:   NewExecutor(ledger, notifier, cfg),
	}
}

// Run processes the account's pending orders against venue and returns the
// cycle's statistics.
func (c *Cycle) Run(ctx context.Context, stop <-chan struct{}, account domain.Account, venue ports.Venue, orders []domain.Order) domain.CycleStats {
	start := time.Now()

	plan, stats := c.reconciler.Evaluate(ctx, stop, venue, orders)
	stats.Merge(c.executor.Execute(ctx, stop, venue, plan))

	stats.AccountID = account.ID
	stats.StartedAt = start.UTC()
	stats.Duration = time.Since(start)
	if ctx.Err() != nil {
		stats.Aborted = true
		stats.Err = ctx.Err().Error()
	}

	slog.Info("sync: account cycle done",
		"account", account.ID,
		"checked", stats.Checked,
		"filled", stats.Filled,
		"canceled_ext", stats.CanceledExt,
		"expired", stats.Expired,
		"repositioned", stats.Repositioned,
		"cancel_errors", stats.CancelErrors,
		"place_errors", stats.PlaceErrors,
		"duration", stats.Duration.Round(time.Millisecond).String(),
	)
	return stats
}
