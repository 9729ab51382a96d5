package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/pegbot/internal/application/engine"
	"github.com/alejandrodnm/pegbot/internal/domain"
	"github.com/alejandrodnm/pegbot/internal/ports"
)

// Config holds the per-cycle tunables.
type Config struct {
	// TickSize is used when the venue quote carries none.
	TickSize decimal.Decimal
	// ThresholdCents is used for rows stored without a positive threshold.
	ThresholdCents decimal.Decimal
	// ExpireAfter cancels positions older than this. Zero disables expiry.
	ExpireAfter time.Duration
	// StrictBatch suppresses every placement of an account when any of its
	// cancels fails.
	StrictBatch bool
}

func (c Config) withDefaults() Config {
	if !c.TickSize.IsPositive() {
		c.TickSize = domain.DefaultTickSize
	}
	if !c.ThresholdCents.IsPositive() {
		c.ThresholdCents = domain.DefaultThresholdCents
	}
	return c
}

// Reconciler decides, per pending order, whether it was filled, cancelled
// externally, expired or drifted far enough from its peg to be repositioned.
type Reconciler struct {
	ledger   ports.Ledger
	notifier ports.Notifier
	cfg      Config
	now      func() time.Time
}

// NewReconciler creates a Reconciler.
func NewReconciler(ledger ports.Ledger, notifier ports.Notifier, cfg Config) *Reconciler {
	return &Reconciler{
		ledger:   ledger,
		notifier: notifier,
		cfg:      cfg.withDefaults(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate walks the account's pending orders and returns the plan for the
// executor. Terminal transitions are written to the ledger as they are found.
// Evaluation stops early, with whatever was planned so far, once stop fires.
func (r *Reconciler) Evaluate(ctx context.Context, stop <-chan struct{}, venue ports.Venue, orders []domain.Order) (domain.Plan, domain.CycleStats) {
	var (
		plan  domain.Plan
		stats domain.CycleStats
		seen  = make(map[string]bool, len(orders))
	)

	for _, o := range orders {
		if engine.Stopped(stop) || ctx.Err() != nil {
			slog.Info("sync: stop requested, evaluation halted", "account", o.AccountID, "remaining", len(orders)-stats.Checked)
			break
		}
		if seen[o.ID] {
			continue
		}
		seen[o.ID] = true
		stats.Checked++

		if o.VenueOrderID == "" {
			slog.Warn("sync: pending order without venue id, skipping", "order", o.ID)
			continue
		}

		status := r.venueStatus(ctx, venue, o)
		switch status {
		case domain.StatusFinished:
			if r.markTerminal(ctx, o, domain.StatusFinished) {
				stats.Filled++
				engine.Emit(ctx, r.notifier, domain.OrderFilled(o))
			}
			continue
		case domain.StatusCanceled:
			if r.markTerminal(ctx, o, domain.StatusCanceled) {
				stats.CanceledExt++
			}
			continue
		}

		if r.cfg.ExpireAfter > 0 && o.Age(r.now()) >= r.cfg.ExpireAfter {
			slog.Info("sync: order expired",
				"order", o.ID,
				"market", o.MarketRef(),
				"age", o.Age(r.now()).Round(time.Minute).String(),
			)
			plan.Expire(o)
			continue
		}

		target, ok := r.target(ctx, venue, o)
		if !ok {
			continue
		}

		threshold := o.RepositionThresholdCents
		if !threshold.IsPositive() {
			threshold = r.cfg.ThresholdCents
		}
		if !domain.NeedsReposition(o.CurrentPrice, target, threshold) {
			slog.Debug("sync: order within threshold",
				"order", o.ID,
				"current", o.CurrentPrice.String(),
				"target", target.String(),
			)
			continue
		}

		slog.Info("sync: price drift, repositioning",
			"order", o.ID,
			"market", o.MarketRef(),
			"side", string(o.Side),
			"current", domain.Cents(o.CurrentPrice),
			"target", domain.Cents(target),
			"delta", fmt.Sprintf("%s¢", domain.DeltaCents(target, o.CurrentPrice).StringFixed(2)),
		)
		plan.Add(o, target)
	}

	return plan, stats
}

// venueStatus asks the venue for the order's state. A failed check is
// logged and the order is treated as still pending.
func (r *Reconciler) venueStatus(ctx context.Context, venue ports.Venue, o domain.Order) domain.OrderStatus {
	status, err := venue.Status(ctx, o.VenueOrderID)
	if err != nil {
		slog.Warn("sync: status check failed, assuming pending",
			"order", o.ID,
			"venue_id", engine.TruncateStr(o.VenueOrderID, 18),
			"err", err,
		)
		return domain.StatusPending
	}
	return status
}

// markTerminal records a venue-reported terminal state. It returns false when
// the ledger write failed; the next cycle sees the same venue state again.
func (r *Reconciler) markTerminal(ctx context.Context, o domain.Order, status domain.OrderStatus) bool {
	if err := r.ledger.MarkStatus(ctx, o.ID, status); err != nil {
		slog.Error("sync: ledger write failed",
			"order", o.ID,
			"status", string(status),
			"err", err,
		)
		return false
	}
	slog.Info("sync: order "+string(status)+" at venue",
		"order", o.ID,
		"market", o.MarketRef(),
		"price", domain.Cents(o.CurrentPrice),
	)
	return true
}

// target computes the pegged price from a fresh quote. It returns false when
// the quote is unavailable or the reference side of the book is empty.
func (r *Reconciler) target(ctx context.Context, venue ports.Venue, o domain.Order) (decimal.Decimal, bool) {
	quote, err := venue.Quote(ctx, o.MarketID, o.TokenID, o.Side)
	if err != nil {
		slog.Warn("sync: quote unavailable, skipping order",
			"order", o.ID,
			"market", o.MarketRef(),
			"err", err,
		)
		return decimal.Zero, false
	}
	ref := quote.Reference(o.Side)
	if !ref.IsPositive() {
		slog.Warn("sync: empty reference side, skipping order",
			"order", o.ID,
			"market", o.MarketRef(),
			"side", string(o.Side),
		)
		return decimal.Zero, false
	}
	return domain.TargetPrice(ref, o.Side, o.OffsetTicks, quote.Tick(r.cfg.TickSize)), true
}
