package polymarket

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/alejandrodnm/pegbot/internal/domain"
	"github.com/alejandrodnm/pegbot/internal/ports"
)

// Registry hands out one Venue per account. Sessions are created lazily,
// cached, and never shared between accounts.
type Registry struct {
	clobBase string
	keyEnv   map[string]string // account id → env var holding the private key
	opts     []Option
	lookup   func(string) string

	mu     sync.Mutex
	venues map[string]*Venue
}

// NewRegistry creates a Registry. keyEnv maps account ids to the name of the
// environment variable carrying that account's private key.
func NewRegistry(clobBase string, keyEnv map[string]string, opts ...Option) *Registry {
	return &Registry{
		clobBase: clobBase,
		keyEnv:   keyEnv,
		opts:     opts,
		lookup:   os.Getenv,
		venues:   make(map[string]*Venue),
	}
}

// WithKeyLookup replaces os.Getenv as the private key source.
func (r *Registry) WithKeyLookup(lookup func(string) string) *Registry {
	r.lookup = lookup
	return r
}

// Venue returns the account's session, deriving API credentials on first use.
// Any credential failure is reported as domain.ErrAccountUnhealthy.
func (r *Registry) Venue(ctx context.Context, account domain.Account) (ports.Venue, error) {
	r.mu.Lock()
	v, ok := r.venues[account.ID]
	r.mu.Unlock()
	if ok {
		return v, nil
	}

	envName, ok := r.keyEnv[account.ID]
	if !ok || envName == "" {
		return nil, fmt.Errorf("polymarket.Registry: account %s has no key configured: %w", account.ID, domain.ErrAccountUnhealthy)
	}
	key := r.lookup(envName)
	if key == "" {
		return nil, fmt.Errorf("polymarket.Registry: account %s: %s is empty: %w", account.ID, envName, domain.ErrAccountUnhealthy)
	}

	auth, err := NewAuthClient(r.clobBase, key, r.opts...)
	if err != nil {
		return nil, fmt.Errorf("polymarket.Registry: account %s: %w: %w", account.ID, domain.ErrAccountUnhealthy, err)
	}
	if err := auth.EnsureCreds(ctx); err != nil {
		return nil, fmt.Errorf("polymarket.Registry: account %s: %w: %w", account.ID, domain.ErrAccountUnhealthy, err)
	}

	v = NewVenue(auth)
	r.mu.Lock()
	if existing, ok := r.venues[account.ID]; ok {
		v = existing
	} else {
		r.venues[account.ID] = v
	}
	r.mu.Unlock()
	return v, nil
}
