package reconcile_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/pegbot/internal/application/engine/reconcile"
	"github.com/alejandrodnm/pegbot/internal/domain"
)

func planFor(orders ...domain.Order) domain.Plan {
	var p domain.Plan
	for _, o := range orders {
		p.Add(o, d("0.455"))
	}
	return p
}

func TestExecutor_ScenarioB_RepositionEmitsPendingThenUpdated(t *testing.T) {
	o := makeOrder("b", domain.SideBuy, "0.45")
	ledger := newFakeLedger(o)
	venue := newFakeVenue()
	venue.quotes[o.TokenID] = bidQuote("0.460")
	notifier := &fakeNotifier{}

	stats := reconcile.NewCycle(ledger, notifier, defaultConfig()).
		Run(context.Background(), nil, account, venue, []domain.Order{o})

	assert.Equal(t, 1, stats.Repositioned)
	assert.Equal(t, domain.StatusCanceled, ledger.status(o.ID))
	require.Equal(t, [][]string{{"0xb"}}, venue.cancelCalls)

	specs := venue.placedSpecs()
	require.Len(t, specs, 1)
	assert.True(t, specs[0].Price.Equal(d("0.455")))

	require.Len(t, ledger.saved, 1)
	row := ledger.saved[0]
	assert.Equal(t, domain.StatusPending, row.Status)
	assert.True(t, row.CurrentPrice.Equal(d("0.455")))
	assert.True(t, row.TargetPrice.Equal(row.CurrentPrice))
	assert.Equal(t, o.PositionID, row.PositionID)
	assert.Equal(t, o.ID, row.ReplacesID)
	assert.Equal(t, o.OffsetTicks, row.OffsetTicks)
	assert.Equal(t, o.CreatedAt, row.CreatedAt)
	assert.Equal(t, "0xnew1", row.VenueOrderID)
	assert.NotEqual(t, o.ID, row.ID)

	assert.Equal(t, []domain.EventKind{domain.EventPriceChangePending, domain.EventOrderUpdated}, notifier.kinds())
	pending := notifier.events[0]
	assert.True(t, pending.OldPrice.Equal(d("0.45")))
	assert.True(t, pending.NewPrice.Equal(d("0.455")))
	updated := notifier.events[1]
	assert.Equal(t, "0xnew1", updated.NewVenueID)
}

func TestExecutor_ScenarioD_PartialCancelFailure(t *testing.T) {
	id1 := makeOrder("id1", domain.SideBuy, "0.45")
	id2 := makeOrder("id2", domain.SideBuy, "0.45")
	ledger := newFakeLedger(id1, id2)
	venue := newFakeVenue()
	venue.cancelFails[id2.VenueOrderID] = "ORDER_LOCKED"
	notifier := &fakeNotifier{}

	x := reconcile.NewExecutor(ledger, notifier, defaultConfig())
	stats := x.Execute(context.Background(), nil, venue, planFor(id1, id2))

	assert.Equal(t, domain.StatusCanceled, ledger.status(id1.ID))
	assert.Equal(t, domain.StatusPending, ledger.status(id2.ID))
	assert.Equal(t, 1, stats.Repositioned)
	assert.Equal(t, 1, stats.CancelErrors)

	specs := venue.placedSpecs()
	require.Len(t, specs, 1)
	assert.Equal(t, id1.ID, specs[0].ReplacesID)

	var cancelErrors []domain.Event
	for _, ev := range notifier.events {
		if ev.Kind == domain.EventCancelError {
			cancelErrors = append(cancelErrors, ev)
		}
	}
	require.Len(t, cancelErrors, 1)
	assert.Equal(t, id2.ID, cancelErrors[0].OrderID)
	assert.Equal(t, "ORDER_LOCKED", cancelErrors[0].Code)
}

func TestExecutor_PlacesOnlyForConfirmedCancels(t *testing.T) {
	// One failure injected at each position of a batch of three.
	for failAt := 0; failAt < 3; failAt++ {
		orders := []domain.Order{
			makeOrder("o1", domain.SideBuy, "0.45"),
			makeOrder("o2", domain.SideBuy, "0.45"),
			makeOrder("o3", domain.SideBuy, "0.45"),
		}
		ledger := newFakeLedger(orders...)
		venue := newFakeVenue()
		venue.cancelFails[orders[failAt].VenueOrderID] = "NOT_FOUND"

		x := reconcile.NewExecutor(ledger, &fakeNotifier{}, defaultConfig())
		x.Execute(context.Background(), nil, venue, planFor(orders...))

		require.Len(t, venue.placeCalls, 1, "failAt=%d", failAt)
		var replaced []string
		for _, spec := range venue.placedSpecs() {
			replaced = append(replaced, spec.ReplacesID)
		}
		var want []string
		for i, o := range orders {
			if i != failAt {
				want = append(want, o.ID)
			}
		}
		assert.ElementsMatch(t, want, replaced, "failAt=%d", failAt)
		assert.Equal(t, domain.StatusPending, ledger.status(orders[failAt].ID))
	}
}

func TestExecutor_SingleCancelBatch(t *testing.T) {
	a := makeOrder("a", domain.SideBuy, "0.45")
	b := makeOrder("b", domain.SideBuy, "0.45")
	venue := newFakeVenue()

	x := reconcile.NewExecutor(newFakeLedger(a, b), &fakeNotifier{}, defaultConfig())
	x.Execute(context.Background(), nil, venue, planFor(a, b))

	require.Len(t, venue.cancelCalls, 1)
	assert.ElementsMatch(t, []string{"0xa", "0xb"}, venue.cancelCalls[0])
	require.Len(t, venue.placeCalls, 1)
}

func TestExecutor_WholeCancelBatchFailurePlacesNothing(t *testing.T) {
	a := makeOrder("a", domain.SideBuy, "0.45")
	ledger := newFakeLedger(a)
	venue := newFakeVenue()
	venue.cancelErr = &domain.VenueError{Op: "cancel", Message: "connection reset", Transient: true}
	notifier := &fakeNotifier{}

	x := reconcile.NewExecutor(ledger, notifier, defaultConfig())
	stats := x.Execute(context.Background(), nil, venue, planFor(a))

	assert.Empty(t, venue.placeCalls)
	assert.Equal(t, domain.StatusPending, ledger.status(a.ID))
	assert.Equal(t, 1, stats.CancelErrors)
	require.Equal(t, []domain.EventKind{domain.EventPriceChangePending, domain.EventCancelError}, notifier.kinds())
	assert.Equal(t, "transient", notifier.events[1].Code)
}

func TestExecutor_MissingCancelResultIsFailure(t *testing.T) {
	a := makeOrder("a", domain.SideBuy, "0.45")
	ledger := newFakeLedger(a)

	venue := &droppingVenue{fakeVenue: newFakeVenue()}
	x := reconcile.NewExecutor(ledger, &fakeNotifier{}, defaultConfig())
	stats := x.Execute(context.Background(), nil, venue, planFor(a))

	assert.Equal(t, domain.StatusPending, ledger.status(a.ID))
	assert.Equal(t, 1, stats.CancelErrors)
	assert.Empty(t, venue.placeCalls)
}

// droppingVenue acknowledges the cancel call but reports on no id.
type droppingVenue struct{ *fakeVenue }

func (v *droppingVenue) Cancel(_ context.Context, _ []string) ([]domain.CancelResult, error) {
	return nil, nil
}

func TestExecutor_PlaceFailureEmitsPlaceError(t *testing.T) {
	a := makeOrder("a", domain.SideBuy, "0.45")
	b := makeOrder("b", domain.SideBuy, "0.45")
	ledger := newFakeLedger(a, b)
	venue := newFakeVenue()
	venue.placeFails[1] = "INVALID_ORDER_MIN_SIZE"
	notifier := &fakeNotifier{}

	x := reconcile.NewExecutor(ledger, notifier, defaultConfig())
	stats := x.Execute(context.Background(), nil, venue, planFor(a, b))

	assert.Equal(t, 1, stats.Repositioned)
	assert.Equal(t, 1, stats.PlaceErrors)
	assert.Equal(t, domain.StatusCanceled, ledger.status(b.ID), "cancel is recorded even when its replacement fails")
	require.Len(t, ledger.saved, 1)
	assert.Equal(t, a.PositionID, ledger.saved[0].PositionID)

	var placeErr *domain.Event
	for i := range notifier.events {
		if notifier.events[i].Kind == domain.EventPlaceError {
			placeErr = &notifier.events[i]
		}
	}
	require.NotNil(t, placeErr)
	require.NotNil(t, placeErr.Spec)
	assert.Equal(t, b.ID, placeErr.Spec.ReplacesID)
	assert.Equal(t, "INVALID_ORDER_MIN_SIZE", placeErr.Code)
}

func TestExecutor_LedgerCancelWriteFailureSkipsReplacement(t *testing.T) {
	a := makeOrder("a", domain.SideBuy, "0.45")
	ledger := newFakeLedger(a)
	ledger.markFails[a.ID] = true
	venue := newFakeVenue()

	notifier := &fakeNotifier{}

	x := reconcile.NewExecutor(ledger, notifier, defaultConfig())
	stats := x.Execute(context.Background(), nil, venue, planFor(a))

	assert.Len(t, venue.cancelCalls, 1)
	assert.Empty(t, venue.placeCalls)
	assert.Equal(t, 1, stats.PlaceErrors)
	assert.Zero(t, stats.Repositioned)

	require.Equal(t, []domain.EventKind{domain.EventPriceChangePending, domain.EventPlaceError}, notifier.kinds())
	placeErr := notifier.events[1]
	assert.Equal(t, reconcile.CodeLedgerWriteFailed, placeErr.Code)
	require.NotNil(t, placeErr.Spec)
	assert.Equal(t, a.ID, placeErr.Spec.ReplacesID)
	assert.True(t, placeErr.NewPrice.Equal(d("0.455")))
}

// La posición cancelada en el venue y no registrada se cierra en silencio en
// el ciclo siguiente; el aviso tiene que haber salido en el primero.
func TestExecutor_UnrecordedCancelIsReportedBeforeRowCloses(t *testing.T) {
	a := makeOrder("a", domain.SideBuy, "0.45")
	ledger := newFakeLedger(a)
	ledger.markFails[a.ID] = true
	venue := newFakeVenue()
	notifier := &fakeNotifier{}

	x := reconcile.NewExecutor(ledger, notifier, defaultConfig())
	x.Execute(context.Background(), nil, venue, planFor(a))

	delete(ledger.markFails, a.ID)
	venue.statuses[a.VenueOrderID] = domain.StatusCanceled
	r := reconcile.NewReconciler(ledger, notifier, defaultConfig())
	plan, stats := r.Evaluate(context.Background(), nil, venue, []domain.Order{a})

	assert.True(t, plan.Empty())
	assert.Equal(t, 1, stats.CanceledExt)
	assert.Equal(t, domain.StatusCanceled, ledger.status(a.ID))
	assert.Contains(t, notifier.kinds(), domain.EventPlaceError, "the lost position reaches the user")
}

func TestExecutor_ExpiryLedgerWriteFailureStillNotifies(t *testing.T) {
	old := makeOrder("old", domain.SideBuy, "0.45")
	old.CreatedAt = time.Now().UTC().Add(-6 * 24 * time.Hour)
	ledger := newFakeLedger(old)
	ledger.markFails[old.ID] = true
	notifier := &fakeNotifier{}

	var plan domain.Plan
	plan.Expire(old)

	x := reconcile.NewExecutor(ledger, notifier, defaultConfig())
	stats := x.Execute(context.Background(), nil, newFakeVenue(), plan)

	assert.Equal(t, 1, stats.Expired)
	assert.Equal(t, domain.StatusPending, ledger.status(old.ID))
	assert.Equal(t, []domain.EventKind{domain.EventOrderExpired}, notifier.kinds())
}

func TestExecutor_PriceChangeAnnouncedBeforeCancelBatch(t *testing.T) {
	a := makeOrder("a", domain.SideBuy, "0.45")
	venue := newFakeVenue()
	venue.cancelFails[a.VenueOrderID] = "ORDER_LOCKED"
	notifier := &fakeNotifier{}

	x := reconcile.NewExecutor(newFakeLedger(a), notifier, defaultConfig())
	x.Execute(context.Background(), nil, venue, planFor(a))

	require.Equal(t, []domain.EventKind{domain.EventPriceChangePending, domain.EventCancelError}, notifier.kinds())
	assert.Equal(t, a.ID, notifier.events[0].OrderID)
	assert.True(t, notifier.events[0].NewPrice.Equal(d("0.455")))
}

func TestExecutor_LedgerSaveFailureCompensates(t *testing.T) {
	a := makeOrder("a", domain.SideBuy, "0.45")
	ledger := newFakeLedger(a)
	ledger.saveErr = errors.New("database is locked")
	venue := newFakeVenue()
	notifier := &fakeNotifier{}

	x := reconcile.NewExecutor(ledger, notifier, defaultConfig())
	stats := x.Execute(context.Background(), nil, venue, planFor(a))

	assert.Equal(t, 1, stats.PlaceErrors)
	assert.Zero(t, stats.Repositioned)
	require.Len(t, venue.cancelCalls, 2)
	assert.Equal(t, []string{"0xnew1"}, venue.cancelCalls[1])
	require.Equal(t, []domain.EventKind{domain.EventPriceChangePending, domain.EventPlaceError}, notifier.kinds())
	assert.Equal(t, reconcile.CodeLedgerWriteFailed, notifier.events[1].Code)
}

func TestExecutor_StrictBatchSuppressesAllPlacements(t *testing.T) {
	a := makeOrder("a", domain.SideBuy, "0.45")
	b := makeOrder("b", domain.SideBuy, "0.45")
	ledger := newFakeLedger(a, b)
	venue := newFakeVenue()
	venue.cancelFails[b.VenueOrderID] = "ORDER_LOCKED"

	cfg := defaultConfig()
	cfg.StrictBatch = true
	x := reconcile.NewExecutor(ledger, &fakeNotifier{}, cfg)
	stats := x.Execute(context.Background(), nil, venue, planFor(a, b))

	assert.Empty(t, venue.placeCalls)
	assert.Equal(t, domain.StatusCanceled, ledger.status(a.ID))
	assert.Equal(t, domain.StatusPending, ledger.status(b.ID))
	assert.Equal(t, 1, stats.CancelErrors)
	assert.Equal(t, 1, stats.PlaceErrors)
}

func TestExecutor_StopBeforeCancelStartsNothing(t *testing.T) {
	a := makeOrder("a", domain.SideBuy, "0.45")
	venue := newFakeVenue()
	stop := make(chan struct{})
	close(stop)

	notifier := &fakeNotifier{}

	x := reconcile.NewExecutor(newFakeLedger(a), notifier, defaultConfig())
	x.Execute(context.Background(), stop, venue, planFor(a))

	assert.Empty(t, venue.cancelCalls)
	assert.Empty(t, venue.placeCalls)
	assert.Empty(t, notifier.kinds(), "no price change is announced for a batch never sent")
}

func TestExecutor_ExpiryCancelsWithoutReplacement(t *testing.T) {
	old := makeOrder("old", domain.SideBuy, "0.45")
	old.CreatedAt = time.Now().UTC().Add(-6 * 24 * time.Hour)
	moving := makeOrder("mv", domain.SideBuy, "0.45")
	ledger := newFakeLedger(old, moving)
	venue := newFakeVenue()
	notifier := &fakeNotifier{}

	plan := planFor(moving)
	plan.Expire(old)

	x := reconcile.NewExecutor(ledger, notifier, defaultConfig())
	stats := x.Execute(context.Background(), nil, venue, plan)

	require.Len(t, venue.cancelCalls, 1)
	assert.ElementsMatch(t, []string{"0xold", "0xmv"}, venue.cancelCalls[0])
	assert.Equal(t, 1, stats.Expired)
	assert.Equal(t, 1, stats.Repositioned)
	assert.Equal(t, domain.StatusCanceled, ledger.status(old.ID))

	specs := venue.placedSpecs()
	require.Len(t, specs, 1)
	assert.Equal(t, moving.ID, specs[0].ReplacesID)

	assert.Contains(t, notifier.kinds(), domain.EventOrderExpired)
	for _, ev := range notifier.events {
		if ev.Kind == domain.EventOrderExpired {
			assert.Greater(t, ev.Age, 5*24*time.Hour)
		}
	}
}
