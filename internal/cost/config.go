package cost

import (
	"fmt"
	"math"

	"github.com/steveyegge/mediasift/internal/envutil"
)

// Config holds cost budgeting configuration
type Config struct {
	// Ceiling is the maximum total spend in USD for one run, including
	// spend restored from a checkpoint.
	// nil = unlimited. 0 = nothing may be spent (every item is skipped).
	Ceiling *float64 `yaml:"ceiling" json:"ceiling,omitempty"`

	// AlertThreshold is the fraction of the ceiling that triggers a warning
	// Default: 0.80 (80%)
	AlertThreshold float64 `yaml:"alert_threshold" json:"alert_threshold"`
}

// DefaultConfig returns an unlimited budget alerting at 80%
func DefaultConfig() Config {
	return Config{AlertThreshold: 0.80}
}

// WithCeiling returns a copy of c limited to ceiling USD
func (c Config) WithCeiling(ceiling float64) Config {
	c.Ceiling = &ceiling
	return c
}

// Validate checks that the configuration has safe and reasonable values
func (c Config) Validate() error {
	if c.Ceiling != nil {
		if math.IsNaN(*c.Ceiling) || math.IsInf(*c.Ceiling, 0) {
			return fmt.Errorf("budget ceiling must be a finite number (got %v)", *c.Ceiling)
		}
		if *c.Ceiling < 0 {
			return fmt.Errorf("budget ceiling must be non-negative, got %.2f", *c.Ceiling)
		}
	}
	if c.AlertThreshold <= 0 || c.AlertThreshold > 1.0 {
		return fmt.Errorf("alert_threshold must be between 0 and 1, got %.2f", c.AlertThreshold)
	}
	return nil
}

// ApplyEnv overlays environment variables onto c
//
// Environment variables:
//   - MEDIASIFT_BUDGET: Run ceiling in USD (default: unlimited)
//   - MEDIASIFT_BUDGET_ALERT_THRESHOLD: Warning fraction (default: 0.80)
func ApplyEnv(c *Config) error {
	if err := envutil.OptionalFloat("MEDIASIFT_BUDGET", &c.Ceiling); err != nil {
		return err
	}
	return envutil.Float("MEDIASIFT_BUDGET_ALERT_THRESHOLD", &c.AlertThreshold)
}

// LoadFromEnv loads cost configuration from environment variables
func LoadFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid cost config from environment: %w", err)
	}
	return cfg, nil
}
