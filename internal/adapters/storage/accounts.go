package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/alejandrodnm/pegbot/internal/domain"
)

// UpsertAccount registers an account handle. The health flag of an existing
// account is preserved.
func (s *SQLiteStorage) UpsertAccount(ctx context.Context, a domain.Account) error {
	health := a.Health
	if health == "" {
		health = domain.HealthHealthy
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, label, health) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET label = excluded.label`,
		a.ID, a.Label, string(health))
	if err != nil {
		return fmt.Errorf("storage.UpsertAccount %s: %w", a.ID, err)
	}
	return nil
}

// SetAccountHealth records the credential store's verdict for an account.
func (s *SQLiteStorage) SetAccountHealth(ctx context.Context, accountID string, health domain.AccountHealth) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET health = ?, checked_at = ? WHERE id = ?`,
		string(health), formatTime(s.now()), accountID)
	if err != nil {
		return fmt.Errorf("storage.SetAccountHealth %s: %w", accountID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("storage.SetAccountHealth %s: %w", accountID, sql.ErrNoRows)
	}
	return nil
}

// ListAccounts returns every registered account.
func (s *SQLiteStorage) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, label, health, checked_at FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("storage.ListAccounts: query: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var a domain.Account
		var health string
		var checkedAt sql.NullString
		if err := rows.Scan(&a.ID, &a.Label, &health, &checkedAt); err != nil {
			return nil, fmt.Errorf("storage.ListAccounts: scan: %w", err)
		}
		a.Health = domain.AccountHealth(health)
		a.CheckedAt = parseTime(checkedAt.String)
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}
