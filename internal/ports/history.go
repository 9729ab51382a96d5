package ports

import (
	"context"

	"github.com/alejandrodnm/pegbot/internal/domain"
)

// CycleRecorder persists per-account cycle statistics.
type CycleRecorder interface {
	SaveCycle(ctx context.Context, stats domain.CycleStats) error
}
