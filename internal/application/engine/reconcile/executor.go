package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/pegbot/internal/application/engine"
	"github.com/alejandrodnm/pegbot/internal/domain"
	"github.com/alejandrodnm/pegbot/internal/ports"
)

// CodeLedgerWriteFailed marks a placement that the venue accepted but the
// ledger could not record; the fresh venue order is cancelled again.
const CodeLedgerWriteFailed = "ledger_write_failed"

// codeMissingResult marks a batch item the venue did not report on.
const codeMissingResult = "missing_result"

// Executor runs the cancel-then-place protocol for one account's plan.
type Executor struct {
	ledger   ports.Ledger
	notifier ports.Notifier
	cfg      Config
	now      func() time.Time
	newID    func() string
}

// NewExecutor creates an Executor.
func NewExecutor(ledger ports.Ledger, notifier ports.Notifier, cfg Config) *Executor {
	return &Executor{
		ledger:   ledger,
		notifier: notifier,
		cfg:      cfg.withDefaults(),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// leg is one reposition: the row being cancelled and its replacement spec.
type leg struct {
	order domain.Order
	spec  domain.OrderSpec
}

// Execute cancels every planned id in one batch, records the confirmed
// cancels, then places replacements only for legs whose cancel was confirmed
// and recorded. Nothing is started once stop has fired; a started batch pair
// runs to completion on ctx.
func (x *Executor) Execute(ctx context.Context, stop <-chan struct{}, venue ports.Venue, plan domain.Plan) domain.CycleStats {
	var stats domain.CycleStats
	if plan.Empty() {
		return stats
	}
	if engine.Stopped(stop) {
		slog.Info("sync: stop requested, cancel batch not started",
			"repositions", len(plan.ToCancel),
			"expiries", len(plan.ToExpire),
		)
		return stats
	}

	// Announced only once the cancel batch is certain to be sent.
	for i, o := range plan.ToCancel {
		engine.Emit(ctx, x.notifier, domain.PriceChangePending(o, plan.ToPlace[i].Price))
	}

	batch := make([]domain.Order, 0, len(plan.ToCancel)+len(plan.ToExpire))
	batch = append(batch, plan.ToCancel...)
	batch = append(batch, plan.ToExpire...)

	results := x.cancelBatch(ctx, venue, batch)

	var (
		confirmed []leg
		failed    int
	)
	for i, o := range batch {
		expiry := i >= len(plan.ToCancel)
		res := results[o.VenueOrderID]
		if !res.OK {
			failed++
			stats.CancelErrors++
			slog.Warn("sync: cancel not confirmed, keeping order pending",
				"order", o.ID,
				"venue_id", engine.TruncateStr(o.VenueOrderID, 18),
				"code", res.Code,
				"msg", res.Message,
			)
			engine.Emit(ctx, x.notifier, domain.CancelError(o, res.Code, res.Message))
			continue
		}
		if expiry {
			// The venue order is gone either way; a failed write is closed
			// next cycle by the status check.
			if err := x.ledger.MarkStatus(ctx, o.ID, domain.StatusCanceled); err != nil {
				slog.Error("sync: expiry cancel confirmed but ledger write failed",
					"order", o.ID,
					"err", err,
				)
			}
			stats.Expired++
			engine.Emit(ctx, x.notifier, domain.OrderExpired(o, o.Age(x.now())))
			continue
		}
		if err := x.ledger.MarkStatus(ctx, o.ID, domain.StatusCanceled); err != nil {
			stats.PlaceErrors++
			slog.Error("sync: cancel confirmed but ledger write failed, no replacement",
				"order", o.ID,
				"err", err,
			)
			engine.Emit(ctx, x.notifier, domain.PlaceError(plan.ToPlace[i], CodeLedgerWriteFailed,
				"order cancelled at venue but not recorded, replacement not placed: "+err.Error()))
			continue
		}
		confirmed = append(confirmed, leg{order: o, spec: plan.ToPlace[i]})
	}

	if failed > 0 && x.cfg.StrictBatch && len(confirmed) > 0 {
		slog.Warn("sync: strict batch, placements suppressed after cancel failure",
			"failed", failed,
			"suppressed", len(confirmed),
		)
		for _, l := range confirmed {
			stats.PlaceErrors++
			engine.Emit(ctx, x.notifier, domain.PlaceError(l.spec, "cancel_batch_incomplete",
				"replacement suppressed because another cancel in the batch failed"))
		}
		return stats
	}
	if len(confirmed) == 0 {
		return stats
	}

	placed := x.placeBatch(ctx, venue, confirmed)
	for i, l := range confirmed {
		res := placed[i]
		if !res.OK || res.VenueOrderID == "" {
			stats.PlaceErrors++
			slog.Warn("sync: placement rejected, position left unreplaced",
				"order", l.order.ID,
				"price", domain.Cents(l.spec.Price),
				"code", res.Code,
				"msg", res.Message,
			)
			engine.Emit(ctx, x.notifier, domain.PlaceError(l.spec, res.Code, res.Message))
			continue
		}

		row := domain.Replacement(l.order, l.spec, x.newID(), res.VenueOrderID, x.now())
		if err := x.ledger.SaveOrder(ctx, row); err != nil {
			stats.PlaceErrors++
			slog.Error("sync: replacement placed but ledger write failed, cancelling it",
				"order", l.order.ID,
				"venue_id", engine.TruncateStr(res.VenueOrderID, 18),
				"err", err,
			)
			x.compensate(ctx, venue, res.VenueOrderID)
			engine.Emit(ctx, x.notifier, domain.PlaceError(l.spec, CodeLedgerWriteFailed, err.Error()))
			continue
		}

		stats.Repositioned++
		slog.Info("sync: order repositioned",
			"order", l.order.ID,
			"new_order", row.ID,
			"market", l.order.MarketRef(),
			"from", domain.Cents(l.order.CurrentPrice),
			"to", domain.Cents(row.CurrentPrice),
		)
		engine.Emit(ctx, x.notifier, domain.OrderUpdated(l.order, row))
	}
	return stats
}

// cancelBatch issues the single cancel call and indexes results by venue id.
// A whole-batch failure or a missing item is reported as a failed result.
func (x *Executor) cancelBatch(ctx context.Context, venue ports.Venue, batch []domain.Order) map[string]domain.CancelResult {
	ids := make([]string, len(batch))
	for i, o := range batch {
		ids[i] = o.VenueOrderID
	}

	byID := make(map[string]domain.CancelResult, len(ids))
	results, err := venue.Cancel(ctx, ids)
	if err != nil {
		slog.Warn("sync: cancel batch failed", "ids", len(ids), "err", err)
		for _, id := range ids {
			byID[id] = domain.CancelResult{VenueOrderID: id, Code: domain.ErrorCode(err), Message: err.Error()}
		}
		return byID
	}
	for _, res := range results {
		byID[res.VenueOrderID] = res
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			byID[id] = domain.CancelResult{VenueOrderID: id, Code: codeMissingResult, Message: "venue returned no result for id"}
		}
	}
	return byID
}

// placeBatch issues the single place call and returns one result per leg.
func (x *Executor) placeBatch(ctx context.Context, venue ports.Venue, legs []leg) []domain.PlaceResult {
	specs := make([]domain.OrderSpec, len(legs))
	for i, l := range legs {
		specs[i] = l.spec
	}

	out := make([]domain.PlaceResult, len(legs))
	results, err := venue.Place(ctx, specs)
	if err != nil {
		slog.Warn("sync: place batch failed", "specs", len(specs), "err", err)
		for i := range out {
			out[i] = domain.PlaceResult{Code: domain.ErrorCode(err), Message: err.Error()}
		}
		return out
	}
	for i := range out {
		if i < len(results) {
			out[i] = results[i]
			continue
		}
		out[i] = domain.PlaceResult{Code: codeMissingResult, Message: "venue returned no result for spec"}
	}
	return out
}

// compensate cancels a venue order the ledger does not know about. Failure is
// logged for manual follow-up.
func (x *Executor) compensate(ctx context.Context, venue ports.Venue, venueOrderID string) {
	results, err := venue.Cancel(ctx, []string{venueOrderID})
	if err == nil && len(results) == 1 && results[0].OK {
		return
	}
	slog.Error("sync: compensating cancel failed, venue order untracked",
		"venue_id", venueOrderID,
		"err", err,
	)
}
