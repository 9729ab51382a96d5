package ports

import (
	"context"

	"github.com/alejandrodnm/pegbot/internal/domain"
)

// AccountStore exposes the credential store's account handles.
type AccountStore interface {
	ListAccounts(ctx context.Context) ([]domain.Account, error)
}
