package storage

// sqlite.go: ledger durable del engine.
//
// Tablas:
//   - `orders`: una fila por orden de venue. Un reposicionamiento cancela la
//     fila y escribe otra con el mismo position_id. Un índice único parcial
//     garantiza a lo sumo una fila pending por posición.
//   - `accounts`: handles de cuenta y su flag de salud (lo mantiene el
//     credential store; el engine solo lo lee).
//   - `notifications`: outbox de eventos para el canal de entrega externo.
//   - `sync_runs`: estadísticas por cuenta y ciclo.
//   - Prune automático al arrancar: runs y notificaciones entregadas > 30d.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
    id         TEXT PRIMARY KEY,
    label      TEXT NOT NULL DEFAULT '',
    health     TEXT NOT NULL DEFAULT 'healthy',
    checked_at TEXT
);

CREATE TABLE IF NOT EXISTS orders (
    id                         TEXT PRIMARY KEY,   -- local UUID
    account_id                 TEXT NOT NULL,
    position_id                TEXT NOT NULL,
    replaces_id                TEXT NOT NULL DEFAULT '',
    venue_order_id             TEXT NOT NULL DEFAULT '',
    market_id                  TEXT NOT NULL,
    token_id                   TEXT NOT NULL,
    token_name                 TEXT NOT NULL DEFAULT '',
    side                       TEXT NOT NULL,      -- BUY / SELL
    offset_ticks               INTEGER NOT NULL DEFAULT 0,
    current_price              TEXT NOT NULL,
    target_price               TEXT NOT NULL,
    amount                     TEXT NOT NULL,
    status                     TEXT NOT NULL DEFAULT 'pending',
    reposition_threshold_cents TEXT NOT NULL DEFAULT '0.5',
    created_at                 TEXT NOT NULL,
    placed_at                  TEXT NOT NULL,
    updated_at                 TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS orders_one_pending_per_position
    ON orders(position_id) WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS orders_status_account ON orders(status, account_id, created_at);
CREATE INDEX IF NOT EXISTS orders_market ON orders(market_id);

CREATE TABLE IF NOT EXISTS notifications (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    account_id   TEXT NOT NULL,
    kind         TEXT NOT NULL,
    order_id     TEXT NOT NULL DEFAULT '',
    payload      TEXT NOT NULL,
    created_at   TEXT NOT NULL,
    delivered_at TEXT
);

CREATE INDEX IF NOT EXISTS notifications_undelivered ON notifications(delivered_at, id);

CREATE TABLE IF NOT EXISTS sync_runs (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    account_id    TEXT NOT NULL,
    started_at    TEXT NOT NULL,
    duration_ms   INTEGER NOT NULL DEFAULT 0,
    checked       INTEGER NOT NULL DEFAULT 0,
    filled        INTEGER NOT NULL DEFAULT 0,
    canceled_ext  INTEGER NOT NULL DEFAULT 0,
    expired       INTEGER NOT NULL DEFAULT 0,
    repositioned  INTEGER NOT NULL DEFAULT 0,
    cancel_errors INTEGER NOT NULL DEFAULT 0,
    place_errors  INTEGER NOT NULL DEFAULT 0,
    aborted       INTEGER NOT NULL DEFAULT 0,
    error         TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS sync_runs_started ON sync_runs(started_at DESC);
`

const retention = 30 * 24 * time.Hour

// timeLayout es de ancho fijo para que el orden lexicográfico del TEXT
// coincida con el cronológico.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStorage implementa los ports de ledger, cuentas, notificaciones e
// historial usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada,
// aplica el schema y limpia datos antiguos.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: busy_timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
	s.pruneOld(context.Background())
	return s, nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// pruneOld elimina historial antiguo para mantener la DB ligera.
// Las órdenes nunca se borran.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoff := formatTime(s.now().Add(-retention))
	s.db.ExecContext(ctx, `DELETE FROM sync_runs WHERE started_at < ?`, cutoff)
	s.db.ExecContext(ctx, `DELETE FROM notifications WHERE delivered_at IS NOT NULL AND delivered_at < ?`, cutoff)
}

// --- helpers internos ---

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t.UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
