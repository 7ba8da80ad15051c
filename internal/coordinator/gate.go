package coordinator

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/steveyegge/mediasift/internal/progress"
	"github.com/steveyegge/mediasift/internal/types"
)

// gate admits capability calls for one run: it reserves the tier's
// worst-case cost in the ledger, then waits for the global rate limiter.
// Budget is checked first so a refused call never consumes a rate slot.
type gate struct {
	ledger  *progress.Ledger
	limiter *rate.Limiter
}

func newGate(ledger *progress.Ledger, interval time.Duration) *gate {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &gate{
		ledger:  ledger,
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (g *gate) Acquire(ctx context.Context, tier types.Tier) (func(actual float64), error) {
	release, err := g.ledger.Reserve(tier.Name, tier.Reservation())
	if err != nil {
		return nil, err
	}
	if err := g.limiter.Wait(ctx); err != nil {
		release(0)
		return nil, fmt.Errorf("waiting for rate limit: %w", err)
	}
	return release, nil
}
