package tiers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/steveyegge/mediasift/internal/ai"
	"github.com/steveyegge/mediasift/internal/cost"
	"github.com/steveyegge/mediasift/internal/types"
)

// Gate admits capability calls. Acquire blocks until tier may be called
// (rate limiting) and reserves its estimated cost. The returned release
// func must be called exactly once with the cost actually incurred.
// Acquire returns an error wrapping cost.ErrBudgetExhausted when the
// budget cannot cover the call, or the context error when interrupted.
type Gate interface {
	Acquire(ctx context.Context, tier types.Tier) (release func(actual float64), err error)
}

// openGate admits everything immediately
type openGate struct{}

func (openGate) Acquire(context.Context, types.Tier) (func(float64), error) {
	return func(float64) {}, nil
}

// Config configures a Selector
type Config struct {
	// Tiers ordered cheapest first
	Tiers []types.Tier `yaml:"tiers"`

	Criteria Criteria `yaml:"sufficiency"`

	// CallTimeout bounds each capability invocation
	// Default: 60 seconds
	CallTimeout time.Duration `yaml:"call_timeout"`

	// Instructions sent with every image (default: ai.DefaultInstructions)
	Instructions string `yaml:"instructions"`
}

// DefaultConfig returns a two-tier setup: a cheap OpenAI model escalating
// to a Claude model
func DefaultConfig() Config {
	return Config{
		Tiers: []types.Tier{
			{
				Name:          "cheap",
				Provider:      ai.ProviderOpenAI,
				Model:         "gpt-4o-mini",
				EstimatedCost: 0.002,
				Pricing:       types.Pricing{InputPerMTok: 0.15, OutputPerMTok: 0.60},
				MaxTokens:     1024,
			},
			{
				Name:          "premium",
				Provider:      ai.ProviderAnthropic,
				Model:         "claude-sonnet-4-5-20250929",
				EstimatedCost: 0.02,
				Pricing:       types.Pricing{InputPerMTok: 3.00, OutputPerMTok: 15.00},
				MaxTokens:     1024,
			},
		},
		Criteria:    DefaultCriteria(),
		CallTimeout: 60 * time.Second,
	}
}

// Validate checks the tier list and thresholds
func (c Config) Validate() error {
	if len(c.Tiers) == 0 {
		return fmt.Errorf("at least one tier is required")
	}
	seen := make(map[string]bool, len(c.Tiers))
	for i, tier := range c.Tiers {
		if err := tier.Validate(); err != nil {
			return fmt.Errorf("tiers[%d]: %w", i, err)
		}
		if seen[tier.Name] {
			return fmt.Errorf("duplicate tier name %q", tier.Name)
		}
		seen[tier.Name] = true
	}
	if err := c.Criteria.Validate(); err != nil {
		return fmt.Errorf("sufficiency: %w", err)
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("call_timeout must be positive (got %v)", c.CallTimeout)
	}
	return nil
}

// TierIndex returns the position of the named tier
func (c Config) TierIndex(name string) (int, error) {
	for i, tier := range c.Tiers {
		if tier.Name == name {
			return i, nil
		}
	}
	names := make([]string, len(c.Tiers))
	for i, tier := range c.Tiers {
		names[i] = tier.Name
	}
	return 0, fmt.Errorf("unknown tier %q (have %s)", name, strings.Join(names, ", "))
}

// Invocation records one capability call
type Invocation struct {
	Tier       string        `json:"tier"`
	Cost       float64       `json:"cost"`
	Duration   time.Duration `json:"duration"`
	Sufficient bool          `json:"sufficient"`
	Error      string        `json:"error,omitempty"`
}

// Selection is the outcome of one logical attempt across tiers
type Selection struct {
	// Result is the first sufficient result, or the last one obtained.
	// Its Cost is the total of every invocation in the attempt.
	Result      *types.AnalysisResult
	Invocations []Invocation
	Cost        float64
}

// Calls returns the number of capability invocations made
func (s *Selection) Calls() int {
	return len(s.Invocations)
}

// Selector runs one item through the tiers
type Selector struct {
	capability   ai.Capability
	config       Config
	instructions string
	logger       *slog.Logger
}

// NewSelector creates a selector calling capability
func NewSelector(capability ai.Capability, cfg Config, logger *slog.Logger) (*Selector, error) {
	if capability == nil {
		return nil, fmt.Errorf("capability is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tier config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	instructions := cfg.Instructions
	if instructions == "" {
		instructions = ai.DefaultInstructions
	}
	return &Selector{
		capability:   capability,
		config:       cfg,
		instructions: instructions,
		logger:       logger,
	}, nil
}

// Tiers returns the configured tiers, cheapest first
func (s *Selector) Tiers() []types.Tier {
	return s.config.Tiers
}

// Select analyses image starting at tier index start and escalating while
// results are insufficient or calls fail. The final tier accepts any result.
//
// A failing tier hands over to the next one. If every tier fails, the error
// is a *ai.CapabilityError that is retryable when any tier failure was, and
// carries the largest retry-after hint seen.
//
// Capability calls are detached from ctx cancellation and bounded by the
// call timeout; ctx only interrupts waiting in the gate and further escalation.
// The returned Selection is never nil, so spend is visible even on error.
func (s *Selector) Select(ctx context.Context, itemID string, image []byte, start int, gate Gate) (*Selection, error) {
	if start < 0 || start >= len(s.config.Tiers) {
		return &Selection{}, fmt.Errorf("tier index %d out of range", start)
	}
	if gate == nil {
		gate = openGate{}
	}

	sel := &Selection{}
	last := len(s.config.Tiers) - 1

	var (
		best       *types.AnalysisResult
		lastErr    *ai.CapabilityError
		retryable  *ai.CapabilityError
		retryAfter time.Duration
	)

	finish := func() (*Selection, error) {
		best.Cost = sel.Cost
		sel.Result = best
		return sel, nil
	}

	for i := start; i <= last; i++ {
		tier := s.config.Tiers[i]

		if err := ctx.Err(); err != nil {
			if best != nil {
				return finish()
			}
			return sel, err
		}

		if avail, ok := s.capability.(ai.Availability); ok {
			if err := avail.Available(tier); err != nil {
				capErr := ai.Classify(err)
				lastErr = capErr
				if capErr.Retryable() {
					retryable = capErr
				}
				s.logger.Debug("tier unavailable",
					slog.String("item", itemID), slog.String("tier", tier.Name), slog.Any("error", capErr.Err))
				continue
			}
		}

		release, err := gate.Acquire(ctx, tier)
		if err != nil {
			if best != nil {
				s.logger.Debug("escalation stopped, keeping previous result",
					slog.String("item", itemID), slog.String("tier", tier.Name), slog.Any("reason", err))
				return finish()
			}
			return sel, err
		}

		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.CallTimeout)
		started := time.Now()
		resp, err := s.capability.Invoke(callCtx, tier, image, s.instructions)
		timedOut := errors.Is(callCtx.Err(), context.DeadlineExceeded)
		cancel()

		inv := Invocation{Tier: tier.Name, Duration: time.Since(started)}

		if err != nil {
			capErr := ai.Classify(err)
			if errors.Is(capErr, ai.ErrCircuitOpen) {
				// Refused before reaching the provider: no call, no spend
				release(0)
				lastErr = capErr
				retryable = capErr
				continue
			}
			if timedOut && capErr.Type != ai.ErrorTimeout {
				capErr = &ai.CapabilityError{Type: ai.ErrorTimeout, Provider: capErr.Provider, Cost: capErr.Cost, Err: err}
			}
			inv.Cost = capErr.Cost
			inv.Error = capErr.Error()
			release(capErr.Cost)
			sel.Cost += capErr.Cost
			sel.Invocations = append(sel.Invocations, inv)

			lastErr = capErr
			if capErr.Retryable() {
				retryable = capErr
				if capErr.RetryAfter > retryAfter {
					retryAfter = capErr.RetryAfter
				}
			}
			s.logger.Debug("tier failed",
				slog.String("item", itemID), slog.String("tier", tier.Name),
				slog.String("type", capErr.Type.String()), slog.Any("error", capErr.Err))
			continue
		}

		inv.Cost = resp.Cost
		release(resp.Cost)
		sel.Cost += resp.Cost

		result := resp.ToResult(itemID, tier)
		best = result
		shortfalls := s.config.Criteria.Shortfalls(result)
		inv.Sufficient = len(shortfalls) == 0
		sel.Invocations = append(sel.Invocations, inv)

		if inv.Sufficient || i == last {
			return finish()
		}
		s.logger.Debug("result insufficient, escalating",
			slog.String("item", itemID), slog.String("tier", tier.Name),
			slog.String("shortfall", strings.Join(shortfalls, "; ")))
	}

	if best != nil {
		return finish()
	}

	// Every tier failed
	attemptErr := &ai.CapabilityError{Type: lastErr.Type, Err: lastErr}
	if retryable != nil {
		attemptErr.Type = retryable.Type
		attemptErr.Err = retryable
		attemptErr.RetryAfter = retryAfter
	}
	return sel, fmt.Errorf("all tiers failed for %s: %w", itemID, attemptErr)
}

// IsBudgetRefusal reports whether err means the gate refused on budget
func IsBudgetRefusal(err error) bool {
	return errors.Is(err, cost.ErrBudgetExhausted)
}
