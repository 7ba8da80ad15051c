// Package cost holds the budget policy and cost accounting helpers.
package cost

import (
	"errors"
	"fmt"
	"math"

	"github.com/steveyegge/mediasift/internal/types"
)

// ErrBudgetExhausted is returned when a call cannot be afforded
var ErrBudgetExhausted = errors.New("budget exhausted")

// BudgetStatus represents the current budget state
type BudgetStatus int

const (
	// BudgetHealthy indicates normal operation - under the alert threshold
	BudgetHealthy BudgetStatus = iota
	// BudgetWarning indicates spend at or above the alert threshold
	BudgetWarning
	// BudgetExceeded indicates nothing more can be spent
	BudgetExceeded
)

// String returns a human-readable string representation of the budget status
func (s BudgetStatus) String() string {
	switch s {
	case BudgetHealthy:
		return "HEALTHY"
	case BudgetWarning:
		return "WARNING"
	case BudgetExceeded:
		return "EXCEEDED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// Budget applies a Config to spend figures. It holds no state; the caller
// serializes access to the spent and reserved amounts.
type Budget struct {
	config Config
}

// NewBudget creates a budget policy
func NewBudget(cfg Config) (*Budget, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Budget{config: cfg}, nil
}

// Limited reports whether a ceiling is set
func (b *Budget) Limited() bool {
	return b.config.Ceiling != nil
}

// Ceiling returns the ceiling, or +Inf when unlimited
func (b *Budget) Ceiling() float64 {
	if b.config.Ceiling == nil {
		return math.Inf(1)
	}
	return *b.config.Ceiling
}

// Remaining returns the ceiling minus spent and reserved amounts
func (b *Budget) Remaining(spent, reserved float64) float64 {
	return b.Ceiling() - spent - reserved
}

// CanAfford reports whether a call estimated at estimate may start.
// A call is refused when nothing remains or the estimate exceeds what
// remains. Returns a reason when refused.
func (b *Budget) CanAfford(spent, reserved, estimate float64) (bool, string) {
	if !b.Limited() {
		return true, ""
	}
	remaining := b.Remaining(spent, reserved)
	if remaining <= 0 {
		return false, fmt.Sprintf("budget of $%.4f exhausted ($%.4f spent, $%.4f reserved)",
			b.Ceiling(), spent, reserved)
	}
	if remaining < estimate {
		return false, fmt.Sprintf("estimated cost $%.4f exceeds remaining budget $%.4f", estimate, remaining)
	}
	return true, ""
}

// Status classifies spend against the ceiling
func (b *Budget) Status(spent float64) BudgetStatus {
	if !b.Limited() {
		return BudgetHealthy
	}
	ceiling := b.Ceiling()
	if spent >= ceiling {
		return BudgetExceeded
	}
	if spent >= ceiling*b.config.AlertThreshold {
		return BudgetWarning
	}
	return BudgetHealthy
}

// Savings summarizes what grouping avoided
type Savings struct {
	CallsAvoided   int     `json:"calls_avoided"`
	EstimatedSaved float64 `json:"estimated_saved"`
}

// EstimateSavings counts derived members of analysed groups and prices each
// at its representative's cost. Groups without a result save nothing.
func EstimateSavings(groups []*types.Group) Savings {
	var s Savings
	for _, g := range groups {
		if g == nil || g.Result == nil || g.Result.IsDerived() {
			continue
		}
		derived := len(g.Others())
		s.CallsAvoided += derived
		s.EstimatedSaved += float64(derived) * g.Result.Cost
	}
	return s
}
