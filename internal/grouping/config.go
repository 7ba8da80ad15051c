package grouping

import (
	"fmt"
	"strings"

	"github.com/steveyegge/mediasift/internal/envutil"
	"github.com/steveyegge/mediasift/internal/imagehash"
	"github.com/steveyegge/mediasift/internal/types"
)

// Config holds configuration for the grouper
type Config struct {
	// Threshold is the minimum composite similarity (0.0-1.0) for an item to
	// join a representative's group.
	// Higher values = fewer merges (fewer wrong derivations, more capability calls)
	// Default: 0.9
	Threshold float64 `yaml:"threshold"`

	// Metric weights the per-algorithm similarities
	Metric imagehash.Metric `yaml:"metric"`

	// Workers bounds parallel fingerprinting
	// Default: 8
	Workers int `yaml:"workers"`

	// HashSize is N; fingerprints are N*N bits
	// Default: 8 (64-bit fingerprints)
	HashSize int `yaml:"hash_size"`

	// FrequencyFactor is the oversampling factor for the frequency hash
	// Default: 4
	FrequencyFactor int `yaml:"frequency_factor"`
}

// DefaultConfig returns the default grouping configuration
func DefaultConfig() Config {
	return Config{
		Threshold:       0.9,
		Metric:          imagehash.DefaultMetric(),
		Workers:         8,
		HashSize:        8,
		FrequencyFactor: 4,
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.Threshold < 0.0 || c.Threshold > 1.0 {
		return fmt.Errorf("threshold must be between 0.0 and 1.0 (got %.2f)", c.Threshold)
	}
	if err := c.Metric.Validate(); err != nil {
		return fmt.Errorf("metric: %w", err)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive (got %d)", c.Workers)
	}
	if c.Workers > 256 {
		return fmt.Errorf("workers too large (got %d, max 256)", c.Workers)
	}
	if err := c.codec().Validate(); err != nil {
		return err
	}
	return nil
}

func (c Config) codec() *imagehash.Codec {
	codec := imagehash.NewCodec()
	codec.Size = c.HashSize
	codec.Factor = c.FrequencyFactor
	return codec
}

// String returns a human-readable representation of the config
func (c Config) String() string {
	weights := make([]string, 0, len(c.Metric.Weights))
	for _, alg := range c.Metric.Algorithms() {
		weights = append(weights, fmt.Sprintf("%s=%.2f", alg, c.Metric.Weights[alg]))
	}
	return fmt.Sprintf("Config{Threshold: %.2f, Weights: [%s], Workers: %d, HashSize: %d, Factor: %d}",
		c.Threshold, strings.Join(weights, " "), c.Workers, c.HashSize, c.FrequencyFactor)
}

// ConfigFromEnv creates a Config from environment variables, falling back to defaults
//
// Environment variables:
//   - MEDIASIFT_GROUP_THRESHOLD: Minimum composite similarity (default: 0.9)
//   - MEDIASIFT_GROUP_WORKERS: Parallel fingerprinting workers (default: 8)
//   - MEDIASIFT_GROUP_HASH_SIZE: Fingerprint side length N (default: 8)
//   - MEDIASIFT_GROUP_WEIGHT_AVERAGE: Weight of the average hash (default: 0)
//   - MEDIASIFT_GROUP_WEIGHT_DIFFERENCE: Weight of the difference hash (default: 0.3)
//   - MEDIASIFT_GROUP_WEIGHT_FREQUENCY: Weight of the frequency hash (default: 0.7)
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration from environment: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overlays MEDIASIFT_GROUP_* variables onto cfg
func ApplyEnv(cfg *Config) error {
	if err := envutil.Float("MEDIASIFT_GROUP_THRESHOLD", &cfg.Threshold); err != nil {
		return err
	}
	if err := envutil.Int("MEDIASIFT_GROUP_WORKERS", &cfg.Workers); err != nil {
		return err
	}
	if err := envutil.Int("MEDIASIFT_GROUP_HASH_SIZE", &cfg.HashSize); err != nil {
		return err
	}

	weightVars := map[types.Algorithm]string{
		types.AlgorithmAverage:    "MEDIASIFT_GROUP_WEIGHT_AVERAGE",
		types.AlgorithmDifference: "MEDIASIFT_GROUP_WEIGHT_DIFFERENCE",
		types.AlgorithmFrequency:  "MEDIASIFT_GROUP_WEIGHT_FREQUENCY",
	}
	for alg, key := range weightVars {
		w, ok := cfg.Metric.Weights[alg]
		if !ok {
			w = 0
		}
		if err := envutil.Float(key, &w); err != nil {
			return err
		}
		if w != 0 || ok {
			if cfg.Metric.Weights == nil {
				cfg.Metric.Weights = make(map[types.Algorithm]float64)
			}
			cfg.Metric.Weights[alg] = w
		}
	}
	return nil
}
