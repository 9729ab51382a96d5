package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/alejandrodnm/pegbot/internal/domain"
)

// SaveCycle implements ports.CycleRecorder.
func (s *SQLiteStorage) SaveCycle(ctx context.Context, st domain.CycleStats) error {
	started := st.StartedAt
	if started.IsZero() {
		started = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_runs
		  (account_id, started_at, duration_ms, checked, filled, canceled_ext, expired,
		   repositioned, cancel_errors, place_errors, aborted, error)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		st.AccountID, formatTime(started), st.Duration.Milliseconds(),
		st.Checked, st.Filled, st.CanceledExt, st.Expired,
		st.Repositioned, st.CancelErrors, st.PlaceErrors, boolToInt(st.Aborted), st.Err,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveCycle %s: %w", st.AccountID, err)
	}
	return nil
}

// RecentRuns returns the newest cycle records first.
func (s *SQLiteStorage) RecentRuns(ctx context.Context, limit int) ([]domain.CycleStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT account_id, started_at, duration_ms, checked, filled, canceled_ext, expired,
		       repositioned, cancel_errors, place_errors, aborted, error
		FROM sync_runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.RecentRuns: query: %w", err)
	}
	defer rows.Close()

	var runs []domain.CycleStats
	for rows.Next() {
		var st domain.CycleStats
		var started string
		var durationMs int64
		var aborted int
		if err := rows.Scan(&st.AccountID, &started, &durationMs,
			&st.Checked, &st.Filled, &st.CanceledExt, &st.Expired,
			&st.Repositioned, &st.CancelErrors, &st.PlaceErrors, &aborted, &st.Err); err != nil {
			return nil, fmt.Errorf("storage.RecentRuns: scan: %w", err)
		}
		st.StartedAt = parseTime(started)
		st.Duration = time.Duration(durationMs) * time.Millisecond
		st.Aborted = aborted != 0
		runs = append(runs, st)
	}
	return runs, rows.Err()
}
