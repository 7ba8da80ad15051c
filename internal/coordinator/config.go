package coordinator

import (
	"errors"
	"fmt"
	"time"

	"github.com/steveyegge/mediasift/internal/ai"
	"github.com/steveyegge/mediasift/internal/cost"
	"github.com/steveyegge/mediasift/internal/envutil"
	"github.com/steveyegge/mediasift/internal/grouping"
	"github.com/steveyegge/mediasift/internal/progress"
	"github.com/steveyegge/mediasift/internal/tiers"
)

// ErrInvalidConfig is wrapped by every ConfigError
var ErrInvalidConfig = errors.New("invalid configuration")

// ConfigError reports an unusable run parameter. Run returns it before any
// capability call is made.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidConfig, e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

func configErr(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Config holds the parameters of a batch run
type Config struct {
	// Concurrency is the maximum number of in-flight analyses (C)
	// Default: 4
	Concurrency int `yaml:"concurrency"`

	// RateInterval is the minimum spacing between any two capability
	// calls, across all workers (R). Zero disables spacing.
	// Default: 250ms
	RateInterval time.Duration `yaml:"rate_interval"`

	// MaxAttempts bounds the attempts per item, first attempt included (M)
	// Default: 3
	MaxAttempts int `yaml:"max_attempts"`

	// CallTimeout bounds each capability invocation
	// Default: 60s
	CallTimeout time.Duration `yaml:"call_timeout"`

	// Resume loads the checkpoint for the run token and skips processed items
	Resume bool `yaml:"resume"`

	// RunToken keys the checkpoint. Empty derives it from the item ids.
	RunToken string `yaml:"run_token"`

	// PinnedTier starts escalation at the named tier instead of the cheapest
	PinnedTier string `yaml:"pinned_tier"`

	// CheckpointInterval is the number of recorded items between checkpoints
	// Default: 10
	CheckpointInterval int `yaml:"-"`

	// Retry controls backoff between attempts
	Retry ai.RetryConfig `yaml:"retry"`

	// Sections configured on their own in the config file
	Budget   cost.Config     `yaml:"-"`
	Tiers    tiers.Config    `yaml:"-"`
	Grouping grouping.Config `yaml:"-"`
}

// DefaultConfig returns the default run configuration
func DefaultConfig() Config {
	return Config{
		Concurrency:        4,
		RateInterval:       250 * time.Millisecond,
		MaxAttempts:        3,
		CallTimeout:        60 * time.Second,
		CheckpointInterval: progress.DefaultInterval,
		Retry:              ai.DefaultRetryConfig(),
		Budget:             cost.DefaultConfig(),
		Tiers:              tiers.DefaultConfig(),
		Grouping:           grouping.DefaultConfig(),
	}
}

// Validate checks every parameter and returns a *ConfigError for the first
// invalid one.
func (c Config) Validate() error {
	if c.Concurrency < 1 {
		return configErr("concurrency", "must be at least 1 (got %d)", c.Concurrency)
	}
	if c.MaxAttempts < 1 {
		return configErr("max_attempts", "must be at least 1 (got %d)", c.MaxAttempts)
	}
	if c.RateInterval < 0 {
		return configErr("rate_interval", "cannot be negative (got %v)", c.RateInterval)
	}
	if c.CallTimeout <= 0 {
		return configErr("call_timeout", "must be positive (got %v)", c.CallTimeout)
	}
	if c.CheckpointInterval < 1 {
		return configErr("checkpoint_interval", "must be at least 1 (got %d)", c.CheckpointInterval)
	}
	if err := c.Budget.Validate(); err != nil {
		return configErr("budget", "%v", err)
	}
	if err := c.Retry.Validate(); err != nil {
		return configErr("retry", "%v", err)
	}
	if err := c.Grouping.Validate(); err != nil {
		return configErr("grouping", "%v", err)
	}
	tiersCfg := c.tiersConfig()
	if err := tiersCfg.Validate(); err != nil {
		return configErr("tiers", "%v", err)
	}
	if c.Budget.Ceiling != nil {
		// A free tier could never be refused, so the ceiling would not hold
		for _, tier := range tiersCfg.Tiers {
			if tier.EstimatedCost <= 0 {
				return configErr("tiers", "tier %s: estimated_cost must be positive when a budget ceiling is set", tier.Name)
			}
		}
	}
	if c.PinnedTier != "" {
		if _, err := tiersCfg.TierIndex(c.PinnedTier); err != nil {
			return configErr("pinned_tier", "%v", err)
		}
	}
	return nil
}

// tiersConfig applies the run's call timeout to the tier configuration
func (c Config) tiersConfig() tiers.Config {
	t := c.Tiers
	t.CallTimeout = c.CallTimeout
	return t
}

// ApplyEnv overlays MEDIASIFT_* run variables onto c
func ApplyEnv(c *Config) error {
	if err := envutil.Int("MEDIASIFT_CONCURRENCY", &c.Concurrency); err != nil {
		return err
	}
	if err := envutil.Duration("MEDIASIFT_RATE_INTERVAL", &c.RateInterval, time.Millisecond); err != nil {
		return err
	}
	if err := envutil.Int("MEDIASIFT_MAX_ATTEMPTS", &c.MaxAttempts); err != nil {
		return err
	}
	if err := envutil.Duration("MEDIASIFT_CALL_TIMEOUT", &c.CallTimeout, time.Second); err != nil {
		return err
	}
	if err := envutil.Bool("MEDIASIFT_RESUME", &c.Resume); err != nil {
		return err
	}
	envutil.String("MEDIASIFT_RUN_TOKEN", &c.RunToken)
	envutil.String("MEDIASIFT_TIER", &c.PinnedTier)
	return nil
}
