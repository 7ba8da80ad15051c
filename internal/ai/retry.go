package ai

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
)

// RetryConfig holds retry and circuit breaker configuration for capability calls
type RetryConfig struct {
	InitialBackoff    time.Duration `yaml:"initial_backoff"`    // Initial backoff duration (default: 1s)
	MaxBackoff        time.Duration `yaml:"max_backoff"`        // Maximum backoff duration (default: 30s)
	BackoffMultiplier float64       `yaml:"backoff_multiplier"` // Backoff multiplier (default: 2.0)
	Jitter            float64       `yaml:"jitter"`             // Random extra fraction of the backoff, 0-1 (default: 0.2)

	// Circuit breaker settings
	CircuitBreakerEnabled bool          `yaml:"circuit_breaker"`   // Enable circuit breaker (default: true)
	FailureThreshold      int           `yaml:"failure_threshold"` // Failures before opening circuit (default: 5)
	SuccessThreshold      int           `yaml:"success_threshold"` // Successes in half-open before closing (default: 2)
	OpenTimeout           time.Duration `yaml:"open_timeout"`      // How long to keep circuit open (default: 30s)
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialBackoff:        1 * time.Second,
		MaxBackoff:            30 * time.Second,
		BackoffMultiplier:     2.0,
		Jitter:                0.2,
		CircuitBreakerEnabled: true,
		FailureThreshold:      5,
		SuccessThreshold:      2,
		OpenTimeout:           30 * time.Second,
	}
}

// Validate checks if the configuration has valid values
func (c RetryConfig) Validate() error {
	if c.InitialBackoff < 0 {
		return fmt.Errorf("initial_backoff cannot be negative (got %v)", c.InitialBackoff)
	}
	if c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("max_backoff (%v) must be >= initial_backoff (%v)", c.MaxBackoff, c.InitialBackoff)
	}
	if c.BackoffMultiplier < 1.0 {
		return fmt.Errorf("backoff_multiplier must be >= 1.0 (got %.2f)", c.BackoffMultiplier)
	}
	if c.Jitter < 0 || c.Jitter > 1 {
		return fmt.Errorf("jitter must be between 0.0 and 1.0 (got %.2f)", c.Jitter)
	}
	if c.CircuitBreakerEnabled {
		if c.FailureThreshold <= 0 {
			return fmt.Errorf("failure_threshold must be positive (got %d)", c.FailureThreshold)
		}
		if c.SuccessThreshold <= 0 {
			return fmt.Errorf("success_threshold must be positive (got %d)", c.SuccessThreshold)
		}
		if c.OpenTimeout <= 0 {
			return fmt.Errorf("open_timeout must be positive (got %v)", c.OpenTimeout)
		}
	}
	return nil
}

// Backoff returns the exponential delay before retry number retry (1-based),
// without jitter, capped at MaxBackoff.
func (c RetryConfig) Backoff(retry int) time.Duration {
	if retry < 1 {
		return 0
	}
	backoff := float64(c.InitialBackoff)
	for i := 1; i < retry; i++ {
		backoff *= c.BackoffMultiplier
		if backoff >= float64(c.MaxBackoff) {
			return c.MaxBackoff
		}
	}
	if backoff > float64(c.MaxBackoff) {
		return c.MaxBackoff
	}
	return time.Duration(backoff)
}

// Wait returns how long to wait before retry number retry after err:
// the jittered backoff, or the provider's retry-after hint if that is longer.
func (c RetryConfig) Wait(retry int, err error) time.Duration {
	wait := c.Backoff(retry)
	if c.Jitter > 0 && wait > 0 {
		wait += time.Duration(rand.Float64() * c.Jitter * float64(wait))
	}
	if hint := RetryAfterOf(err); hint > wait {
		wait = hint
	}
	return wait
}

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // Normal operation, requests pass through
	CircuitOpen                         // Too many failures, block requests (fail fast)
	CircuitHalfOpen                     // Testing recovery, allow limited requests
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "CLOSED"
	case CircuitOpen:
		return "OPEN"
	case CircuitHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrCircuitOpen is returned when the circuit breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker stops calling a provider that keeps failing
type CircuitBreaker struct {
	mu sync.Mutex

	name             string
	state            CircuitState
	failureCount     int
	successCount     int
	lastFailureTime  time.Time
	lastStateChange  time.Time
	failureThreshold int
	successThreshold int
	openTimeout      time.Duration
	logger           *slog.Logger

	now func() time.Time
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration
func NewCircuitBreaker(name string, failureThreshold, successThreshold int, openTimeout time.Duration, logger *slog.Logger) *CircuitBreaker {
	if logger == nil {
		logger = slog.Default()
	}
	return &CircuitBreaker{
		name:             name,
		state:            CircuitClosed,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		openTimeout:      openTimeout,
		lastStateChange:  time.Now(),
		logger:           logger,
		now:              time.Now,
	}
}

// Allow checks if a request should be allowed through the circuit breaker
// Returns an error if the circuit is open and hasn't timed out yet
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return nil

	case CircuitOpen:
		if cb.now().Sub(cb.lastFailureTime) > cb.openTimeout {
			cb.transitionTo(CircuitHalfOpen)
			return nil
		}
		return ErrCircuitOpen

	case CircuitHalfOpen:
		// Let trial calls through; the first failure reopens
		return nil

	default:
		return ErrCircuitOpen
	}
}

// Open reports whether the circuit is open and still inside its timeout.
// Unlike Allow it never changes state.
func (cb *CircuitBreaker) Open() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state == CircuitOpen && cb.now().Sub(cb.lastFailureTime) <= cb.openTimeout
}

// RecordSuccess records a successful request
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failureCount = 0

	case CircuitHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.transitionTo(CircuitClosed)
		}
	}
}

// RecordFailure records a failed request
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailureTime = cb.now()

	switch cb.state {
	case CircuitClosed:
		cb.failureCount++
		if cb.failureCount >= cb.failureThreshold {
			cb.transitionTo(CircuitOpen)
		}

	case CircuitHalfOpen:
		cb.transitionTo(CircuitOpen)
	}
}

// GetState returns the current state (for testing/monitoring)
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// GetMetrics returns current metrics (for monitoring/logging)
func (cb *CircuitBreaker) GetMetrics() (state CircuitState, failures, successes int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state, cb.failureCount, cb.successCount
}

// transitionTo changes state (must be called with lock held)
func (cb *CircuitBreaker) transitionTo(state CircuitState) {
	old := cb.state
	cb.state = state
	cb.successCount = 0
	if state == CircuitClosed {
		cb.failureCount = 0
	}
	cb.lastStateChange = cb.now()
	cb.logger.Info("circuit breaker state transition",
		slog.String("provider", cb.name),
		slog.String("from", old.String()),
		slog.String("to", state.String()),
		slog.Int("failures", cb.failureCount))
}
