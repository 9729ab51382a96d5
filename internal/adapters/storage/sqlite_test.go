package storage_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/pegbot/internal/adapters/storage"
	"github.com/alejandrodnm/pegbot/internal/domain"
	"github.com/alejandrodnm/pegbot/internal/ports"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newDB(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func makeOrder(id, account, market string, created time.Time) domain.Order {
	return domain.Order{
		ID:                       id,
		AccountID:                account,
		PositionID:               "pos-" + id,
		VenueOrderID:             "0x" + id,
		MarketID:                 market,
		TokenID:                  "tok-" + id,
		TokenName:                "NO",
		Side:                     domain.SideSell,
		OffsetTicks:              3,
		CurrentPrice:             d("0.612"),
		TargetPrice:              d("0.612"),
		Amount:                   d("25.5"),
		Status:                   domain.StatusPending,
		RepositionThresholdCents: d("0.75"),
		CreatedAt:                created,
		PlacedAt:                 created,
	}
}

func TestSQLiteStorage_SaveAndReadPending(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	created := time.Date(2026, 10, 1, 12, 30, 0, 123456789, time.UTC)

	want := makeOrder("a1", "acct-1", "m1", created)
	require.NoError(t, db.SaveOrder(ctx, want))

	got, err := db.PendingOrders(ctx, ports.OrderFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)

	o := got[0]
	assert.Equal(t, want.ID, o.ID)
	assert.Equal(t, want.PositionID, o.PositionID)
	assert.Equal(t, domain.SideSell, o.Side)
	assert.Equal(t, 3, o.OffsetTicks)
	assert.True(t, o.CurrentPrice.Equal(d("0.612")))
	assert.True(t, o.Amount.Equal(d("25.5")))
	assert.True(t, o.RepositionThresholdCents.Equal(d("0.75")))
	assert.True(t, o.CreatedAt.Equal(created), "nanosecond timestamps survive")
	assert.Equal(t, "m1/NO", o.MarketRef())
}

func TestSQLiteStorage_SaveFillsDefaults(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()

	o := makeOrder("", "acct-1", "m1", time.Time{})
	o.PositionID = ""
	o.RepositionThresholdCents = decimal.Zero
	require.NoError(t, db.SaveOrder(ctx, o))

	got, err := db.PendingOrders(ctx, ports.OrderFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.NotEmpty(t, got[0].ID)
	assert.Equal(t, got[0].ID, got[0].PositionID)
	assert.False(t, got[0].CreatedAt.IsZero())
	assert.True(t, got[0].RepositionThresholdCents.Equal(domain.DefaultThresholdCents))
}

func TestSQLiteStorage_PendingFilterAndOrder(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	require.NoError(t, db.SaveOrder(ctx, makeOrder("b-new", "acct-b", "m1", base.Add(2*time.Minute))))
	require.NoError(t, db.SaveOrder(ctx, makeOrder("a-old", "acct-a", "m2", base)))
	require.NoError(t, db.SaveOrder(ctx, makeOrder("b-old", "acct-b", "m1", base)))
	require.NoError(t, db.SaveOrder(ctx, makeOrder("a-m1", "acct-a", "m1", base.Add(time.Minute))))

	all, err := db.PendingOrders(ctx, ports.OrderFilter{})
	require.NoError(t, err)
	var ids []string
	for _, o := range all {
		ids = append(ids, o.ID)
	}
	assert.Equal(t, []string{"a-old", "a-m1", "b-old", "b-new"}, ids)

	m1, err := db.PendingOrders(ctx, ports.OrderFilter{MarketID: "m1"})
	require.NoError(t, err)
	assert.Len(t, m1, 3)

	byAccount, err := db.PendingOrdersByAccount(ctx, ports.OrderFilter{MarketID: "m1"})
	require.NoError(t, err)
	assert.Len(t, byAccount["acct-a"], 1)
	assert.Len(t, byAccount["acct-b"], 2)

	one, err := db.PendingOrders(ctx, ports.OrderFilter{AccountID: "acct-a", MarketID: "m2"})
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "a-old", one[0].ID)
}

func TestSQLiteStorage_MarkStatusOnlyFromPending(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	require.NoError(t, db.SaveOrder(ctx, makeOrder("f", "acct-1", "m1", time.Now())))

	require.NoError(t, db.MarkStatus(ctx, "f", domain.StatusFinished))

	err := db.MarkStatus(ctx, "f", domain.StatusCanceled)
	assert.True(t, errors.Is(err, storage.ErrNotPending), "finished is terminal")

	hist, err := db.PositionHistory(ctx, "pos-f")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, domain.StatusFinished, hist[0].Status)

	assert.Error(t, db.MarkStatus(ctx, "missing", domain.StatusCanceled))
	assert.Error(t, db.MarkStatus(ctx, "f", domain.StatusPending))
}

func TestSQLiteStorage_OnePendingRowPerPosition(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	old := makeOrder("old", "acct-1", "m1", time.Now().UTC())
	require.NoError(t, db.SaveOrder(ctx, old))

	repl := domain.Replacement(old, domain.SpecFor(old, d("0.615")), "new", "0xnew", time.Now().UTC())
	assert.Error(t, db.SaveOrder(ctx, repl), "a second pending row for the position is rejected")

	require.NoError(t, db.MarkStatus(ctx, old.ID, domain.StatusCanceled))
	require.NoError(t, db.SaveOrder(ctx, repl))

	hist, err := db.PositionHistory(ctx, old.PositionID)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, domain.StatusCanceled, hist[0].Status)
	assert.Equal(t, domain.StatusPending, hist[1].Status)
	assert.Equal(t, "old", hist[1].ReplacesID)
	assert.True(t, hist[1].CurrentPrice.Equal(d("0.615")))
	assert.True(t, hist[1].CreatedAt.Equal(old.CreatedAt))
}

func TestSQLiteStorage_AccountsPreserveHealth(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()

	require.NoError(t, db.UpsertAccount(ctx, domain.Account{ID: "a", Label: "alice"}))
	require.NoError(t, db.SetAccountHealth(ctx, "a", domain.HealthUnhealthy))
	require.NoError(t, db.UpsertAccount(ctx, domain.Account{ID: "a", Label: "alice (main)"}))

	accounts, err := db.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "alice (main)", accounts[0].Label)
	assert.Equal(t, domain.HealthUnhealthy, accounts[0].Health)
	assert.False(t, accounts[0].Healthy())
	assert.False(t, accounts[0].CheckedAt.IsZero())

	assert.Error(t, db.SetAccountHealth(ctx, "ghost", domain.HealthHealthy))
}

func TestSQLiteStorage_NotifyWritesOutbox(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	o := makeOrder("n", "acct-1", "m1", time.Now())

	require.NoError(t, db.Notify(ctx, domain.PriceChangePending(o, d("0.615"))))
	require.NoError(t, db.Notify(ctx, domain.PlaceError(domain.SpecFor(o, d("0.615")), "rejected", "min size")))

	rows, err := db.RecentNotifications(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, domain.EventPlaceError, rows[0].Kind)
	assert.False(t, rows[0].Delivered)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(rows[1].Payload), &payload))
	assert.Equal(t, "price_change_pending", payload["kind"])
	assert.Equal(t, "0.612", payload["old_price"])
	assert.Equal(t, "0.615", payload["new_price"])

	require.NoError(t, json.Unmarshal([]byte(rows[0].Payload), &payload))
	spec := payload["order_spec"].(map[string]any)
	assert.Equal(t, "n", spec["replaces_id"])
	assert.Equal(t, "25.5", spec["amount"])
}

func TestSQLiteStorage_SaveAndReadRuns(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	start := time.Now().UTC().Add(-time.Minute)

	require.NoError(t, db.SaveCycle(ctx, domain.CycleStats{
		AccountID: "a", StartedAt: start, Duration: 1500 * time.Millisecond,
		Checked: 4, Filled: 1, Repositioned: 2, CancelErrors: 1,
	}))
	require.NoError(t, db.SaveCycle(ctx, domain.CycleStats{
		AccountID: "b", StartedAt: start.Add(time.Second), Aborted: true, Err: "context canceled",
	}))

	runs, err := db.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "b", runs[0].AccountID)
	assert.True(t, runs[0].Aborted)
	assert.Equal(t, "context canceled", runs[0].Err)
	assert.Equal(t, 4, runs[1].Checked)
	assert.Equal(t, 1500*time.Millisecond, runs[1].Duration)
}
