package domain

import "time"

// AccountHealth is maintained by the credential store; the engine only reads it.
type AccountHealth string

const (
	HealthHealthy   AccountHealth = "healthy"
	HealthUnhealthy AccountHealth = "unhealthy"
)

// Account is an opaque handle to one user's venue credentials.
type Account struct {
	ID        string
	Label     string
	Health    AccountHealth
	CheckedAt time.Time
}

// Healthy reports whether the account may be processed this tick.
// Accounts never checked are treated as healthy.
func (a Account) Healthy() bool {
	return a.Health != HealthUnhealthy
}

// CycleStats summarises one account's synchronization cycle.
type CycleStats struct {
	AccountID    string
	StartedAt    time.Time
	Duration     time.Duration
	Checked      int
	Filled       int
	CanceledExt  int
	Expired      int
	Repositioned int
	CancelErrors int
	PlaceErrors  int
	Aborted      bool
	Err          string
}

// Merge accumulates other into s (used for per-tick totals).
func (s *CycleStats) Merge(other CycleStats) {
	s.Checked += other.Checked
	s.Filled += other.Filled
	s.CanceledExt += other.CanceledExt
	s.Expired += other.Expired
	s.Repositioned += other.Repositioned
	s.CancelErrors += other.CancelErrors
	s.PlaceErrors += other.PlaceErrors
}
