package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/alejandrodnm/pegbot/internal/domain"
	"github.com/alejandrodnm/pegbot/internal/ports"
)

const (
	DefaultInterval      = 60 * time.Second
	DefaultGrace         = 20 * time.Second
	DefaultMaxConcurrent = 8
)

// Config holds scheduler configuration.
type Config struct {
	Interval      time.Duration
	Grace         time.Duration
	MaxConcurrent int
	// MarketID restricts every tick to one market when set.
	MarketID string
}

// CycleRunner runs one account's synchronization cycle.
type CycleRunner interface {
	Run(ctx context.Context, stop <-chan struct{}, account domain.Account, venue ports.Venue, orders []domain.Order) domain.CycleStats
}

// Scheduler triggers a synchronization tick at a fixed interval and fans out
// one unit per account with pending orders. A unit for an account whose
// previous cycle is still running is skipped, never queued.
type Scheduler struct {
	accounts ports.AccountStore
	ledger   ports.Ledger
	venues   ports.VenueRegistry
	runner   CycleRunner
	history  ports.CycleRecorder
	cfg      Config

	sem *semaphore.Weighted
	wg  sync.WaitGroup

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Scheduler. history may be nil.
func New(
	accounts ports.AccountStore,
	ledger ports.Ledger,
	venues ports.VenueRegistry,
	runner CycleRunner,
	history ports.CycleRecorder,
	cfg Config,
) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultGrace
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	return &Scheduler{
		accounts: accounts,
		ledger:   ledger,
		venues:   venues,
		runner:   runner,
		history:  history,
		cfg:      cfg,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		locks:    make(map[string]*sync.Mutex),
	}
}

// Run ticks until ctx is cancelled, then waits for in-flight units to finish
// or abort. The first tick fires immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("scheduler: started",
		"interval", s.cfg.Interval.String(),
		"max_concurrent", s.cfg.MaxConcurrent,
		"market", s.cfg.MarketID,
	)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.startTick(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler: stop requested, waiting for in-flight cycles")
			s.wg.Wait()
			slog.Info("scheduler: stopped")
			return nil
		case <-ticker.C:
			s.startTick(ctx)
		}
	}
}

// RunOnce runs a single tick and waits for every unit it started.
func (s *Scheduler) RunOnce(ctx context.Context) (domain.CycleStats, error) {
	t, err := s.tick(ctx)
	if err != nil {
		return domain.CycleStats{}, err
	}
	t.wg.Wait()
	return t.total(), nil
}

func (s *Scheduler) startTick(ctx context.Context) {
	t, err := s.tick(ctx)
	if err != nil {
		slog.Error("scheduler: tick failed", "err", err)
		return
	}
	go func() {
		t.wg.Wait()
		total := t.total()
		if total.Checked == 0 {
			return
		}
		slog.Info("scheduler: tick done",
			"accounts", t.units,
			"checked", total.Checked,
			"filled", total.Filled,
			"repositioned", total.Repositioned,
			"expired", total.Expired,
			"errors", total.CancelErrors+total.PlaceErrors,
		)
	}()
}

// tickRun tracks the units started by one tick.
type tickRun struct {
	wg    sync.WaitGroup
	units int

	mu    sync.Mutex
	stats domain.CycleStats
}

func (t *tickRun) add(stats domain.CycleStats) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.Merge(stats)
}

func (t *tickRun) total() domain.CycleStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// tick lists accounts with pending orders and starts one unit per healthy,
// idle account.
func (s *Scheduler) tick(ctx context.Context) (*tickRun, error) {
	t := &tickRun{}
	if ctx.Err() != nil {
		return t, nil
	}

	accounts, err := s.accounts.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("scheduler.tick: list accounts: %w", err)
	}
	pending, err := s.ledger.PendingOrdersByAccount(ctx, ports.OrderFilter{MarketID: s.cfg.MarketID})
	if err != nil {
		return nil, fmt.Errorf("scheduler.tick: pending orders: %w", err)
	}

	known := make(map[string]bool, len(accounts))
	for _, acct := range accounts {
		known[acct.ID] = true
		if len(pending[acct.ID]) == 0 {
			continue
		}
		if !acct.Healthy() {
			slog.Debug("scheduler: account unhealthy, skipping", "account", acct.ID)
			continue
		}
		lock := s.lockFor(acct.ID)
		if !lock.TryLock() {
			slog.Info("scheduler: previous cycle still running, skipping", "account", acct.ID)
			continue
		}

		t.units++
		t.wg.Add(1)
		s.wg.Add(1)
		go func(acct domain.Account) {
			defer s.wg.Done()
			defer t.wg.Done()
			defer lock.Unlock()
			t.add(s.runAccount(ctx, acct))
		}(acct)
	}

	for id, orders := range pending {
		if !known[id] {
			slog.Warn("scheduler: pending orders for unknown account", "account", id, "orders", len(orders))
		}
	}
	return t, nil
}

func (s *Scheduler) lockFor(accountID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[accountID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[accountID] = l
	}
	return l
}

// runAccount runs one account's cycle. The work context is detached from ctx
// so that a started cancel/place pair can finish after shutdown is
// requested; it is cancelled once the grace period expires. Panics end only
// this unit.
func (s *Scheduler) runAccount(ctx context.Context, acct domain.Account) (stats domain.CycleStats) {
	stats.AccountID = acct.ID
	defer func() {
		if r := recover(); r != nil {
			slog.Error("scheduler: account cycle panicked",
				"account", acct.ID,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			stats.Aborted = true
			stats.Err = fmt.Sprintf("panic: %v", r)
		}
	}()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return stats
	}
	defer s.sem.Release(1)

	work, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	var aborted atomic.Bool
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-done:
			return
		case <-ctx.Done():
		}
		grace := time.NewTimer(s.cfg.Grace)
		defer grace.Stop()
		select {
		case <-done:
		case <-grace.C:
			aborted.Store(true)
			slog.Error("scheduler: grace period exceeded, aborting account cycle",
				"account", acct.ID,
				"grace", s.cfg.Grace.String(),
			)
			cancel()
		}
	}()

	venue, err := s.venues.Venue(work, acct)
	if err != nil {
		level := slog.LevelWarn
		if !errors.Is(err, domain.ErrAccountUnhealthy) {
			level = slog.LevelError
		}
		slog.Log(work, level, "scheduler: venue session unavailable, skipping account", "account", acct.ID, "err", err)
		return stats
	}

	// Re-read under the account lock: the listing may predate a cycle that
	// just finished.
	orders, err := s.ledger.PendingOrders(work, ports.OrderFilter{AccountID: acct.ID, MarketID: s.cfg.MarketID})
	if err != nil {
		slog.Error("scheduler: pending orders read failed", "account", acct.ID, "err", err)
		return stats
	}
	if len(orders) == 0 {
		return stats
	}

	stats = s.runner.Run(work, ctx.Done(), acct, venue, orders)
	if aborted.Load() {
		stats.Aborted = true
	}

	if s.history != nil {
		if err := s.history.SaveCycle(work, stats); err != nil {
			slog.Warn("scheduler: save cycle stats failed", "account", acct.ID, "err", err)
		}
	}
	return stats
}
