package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alejandrodnm/pegbot/config"
	"github.com/alejandrodnm/pegbot/internal/adapters/notify"
	"github.com/alejandrodnm/pegbot/internal/adapters/paper"
	"github.com/alejandrodnm/pegbot/internal/adapters/polymarket"
	"github.com/alejandrodnm/pegbot/internal/adapters/storage"
	"github.com/alejandrodnm/pegbot/internal/application/engine/reconcile"
	"github.com/alejandrodnm/pegbot/internal/application/scheduler"
	"github.com/alejandrodnm/pegbot/internal/domain"
	"github.com/alejandrodnm/pegbot/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one synchronization tick and exit")
	report := flag.Bool("report", false, "print pending orders, recent cycles and notifications, then exit")
	paperMode := flag.Bool("paper", false, "simulate orders against real public quotes (separate ledger)")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	setHealth := flag.String("set-health", "", "set an account health flag: <id>=healthy|unhealthy")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	dsn := cfg.Storage.DSN
	if *paperMode {
		dsn = cfg.Storage.PaperDSN
	}
	store, err := storage.NewSQLiteStorage(dsn)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", dsn)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	for _, a := range cfg.Accounts {
		if err := store.UpsertAccount(ctx, domain.Account{ID: a.ID, Label: a.Label}); err != nil {
			slog.Error("failed to register account", "account", a.ID, "err", err)
			os.Exit(1)
		}
	}

	console := notify.NewConsole()

	switch {
	case *setHealth != "":
		if err := applyHealth(ctx, store, *setHealth); err != nil {
			slog.Error("set-health failed", "err", err)
			os.Exit(1)
		}
		return
	case *report:
		if err := printReport(ctx, store, console); err != nil {
			slog.Error("report failed", "err", err)
			os.Exit(1)
		}
		return
	}

	var venues ports.VenueRegistry
	if *paperMode {
		venues = paper.NewRegistry(polymarket.NewClient(cfg.API.CLOBBase))
	} else {
		venues = polymarket.NewRegistry(cfg.API.CLOBBase, cfg.KeyEnv())
	}

	cycle := reconcile.NewCycle(store, notify.NewFanout(store, console), reconcile.Config{
		TickSize:       cfg.TickSize(),
		ThresholdCents: cfg.ThresholdCents(),
		ExpireAfter:    cfg.ExpireAfter(),
		StrictBatch:    cfg.Sync.StrictBatch,
	})
	sched := scheduler.New(store, store, venues, cycle, store, scheduler.Config{
		Interval:      cfg.Interval(),
		Grace:         cfg.Grace(),
		MaxConcurrent: cfg.Sync.MaxConcurrentAccounts,
		MarketID:      cfg.Sync.MarketID,
	})

	slog.Info("pegbot starting",
		"config", *configPath,
		"interval", cfg.Interval(),
		"accounts", len(cfg.Accounts),
		"market", cfg.Sync.MarketID,
		"paper", *paperMode,
		"once", *once,
		"strict_batch", cfg.Sync.StrictBatch,
	)

	if *once {
		stats, err := sched.RunOnce(ctx)
		if err != nil {
			slog.Error("tick failed", "err", err)
			os.Exit(1)
		}
		console.PrintCycle(stats)
		return
	}

	if err := sched.Run(ctx); err != nil {
		slog.Error("scheduler exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("pegbot stopped cleanly")
}

// applyHealth parsea "<id>=healthy|unhealthy" y actualiza el flag de la cuenta.
func applyHealth(ctx context.Context, store *storage.SQLiteStorage, arg string) error {
	id, value, ok := strings.Cut(arg, "=")
	if !ok || id == "" {
		return fmt.Errorf("expected <id>=healthy|unhealthy, got %q", arg)
	}
	health := domain.AccountHealth(value)
	if health != domain.HealthHealthy && health != domain.HealthUnhealthy {
		return fmt.Errorf("unknown health %q", value)
	}
	if err := store.SetAccountHealth(ctx, id, health); err != nil {
		return err
	}
	slog.Info("account health updated", "account", id, "health", health)
	return nil
}

func printReport(ctx context.Context, store *storage.SQLiteStorage, console *notify.Console) error {
	accounts, err := store.ListAccounts(ctx)
	if err != nil {
		return err
	}
	pending, err := store.PendingOrders(ctx, ports.OrderFilter{})
	if err != nil {
		return err
	}
	runs, err := store.RecentRuns(ctx, 20)
	if err != nil {
		return err
	}
	notes, err := store.RecentNotifications(ctx, 20)
	if err != nil {
		return err
	}

	rows := make([]notify.NotificationRow, 0, len(notes))
	for _, n := range notes {
		rows = append(rows, notify.NotificationRow{
			CreatedAt: n.CreatedAt,
			AccountID: n.AccountID,
			Kind:      n.Kind,
			OrderID:   n.OrderID,
			Delivered: n.Delivered,
		})
	}
	console.PrintReport(notify.ReportInput{
		Accounts:      accounts,
		Pending:       pending,
		Runs:          runs,
		Notifications: rows,
	})
	return nil
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
