package ai

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/steveyegge/mediasift/internal/types"
)

// Router implements Capability by dispatching on tier.Provider.
// Each provider sits behind its own circuit breaker.
type Router struct {
	mu        sync.RWMutex
	providers map[string]Capability
	breakers  map[string]*CircuitBreaker
	retry     RetryConfig
	logger    *slog.Logger
}

// NewRouter creates an empty router
func NewRouter(retry RetryConfig, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		providers: make(map[string]Capability),
		breakers:  make(map[string]*CircuitBreaker),
		retry:     retry,
		logger:    logger,
	}
}

// Register adds or replaces the capability serving provider
func (r *Router) Register(provider string, c Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider] = c
	if r.retry.CircuitBreakerEnabled {
		r.breakers[provider] = NewCircuitBreaker(provider,
			r.retry.FailureThreshold, r.retry.SuccessThreshold, r.retry.OpenTimeout, r.logger)
	}
}

// Providers returns the registered provider names, sorted
func (r *Router) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Breaker returns the circuit breaker of provider, or nil
func (r *Router) Breaker(provider string) *CircuitBreaker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.breakers[provider]
}

// Available returns a transient *CapabilityError wrapping ErrCircuitOpen
// when the tier's provider sits behind an open circuit. It does not move
// the breaker to half-open, so callers can check before spending a rate slot.
func (r *Router) Available(tier types.Tier) error {
	r.mu.RLock()
	breaker := r.breakers[tier.Provider]
	r.mu.RUnlock()

	if breaker != nil && breaker.Open() {
		return circuitOpenError(tier)
	}
	return nil
}

func circuitOpenError(tier types.Tier) *CapabilityError {
	// Transient so the selector moves on to the next tier
	return &CapabilityError{
		Type:     ErrorTransient,
		Provider: tier.Provider,
		Err:      fmt.Errorf("%w: %s (tier %s)", ErrCircuitOpen, tier.Provider, tier.Name),
	}
}

// Invoke routes the call to the tier's provider
func (r *Router) Invoke(ctx context.Context, tier types.Tier, image []byte, instructions string) (*Response, error) {
	r.mu.RLock()
	capability, ok := r.providers[tier.Provider]
	breaker := r.breakers[tier.Provider]
	r.mu.RUnlock()

	if !ok {
		return nil, &CapabilityError{
			Type:     ErrorFatal,
			Provider: tier.Provider,
			Err:      fmt.Errorf("%w: %q (tier %s)", ErrNoCapability, tier.Provider, tier.Name),
		}
	}

	if breaker != nil {
		if err := breaker.Allow(); err != nil {
			return nil, circuitOpenError(tier)
		}
	}

	resp, err := capability.Invoke(ctx, tier, image, instructions)
	if err != nil {
		capErr := Classify(err)
		if capErr.Provider == "" {
			capErr.Provider = tier.Provider
		}
		// Auth and bad-request failures say nothing about provider health
		if breaker != nil && capErr.Retryable() {
			breaker.RecordFailure()
		}
		return nil, capErr
	}

	if breaker != nil {
		breaker.RecordSuccess()
	}
	return resp, nil
}
