// Package config loads the mediasift configuration file and applies
// environment overrides.
//
// Precedence, lowest first: built-in defaults, the YAML file, MEDIASIFT_*
// environment variables, then command-line flags (applied by the caller).
// Durations in the file are strings ("250ms", "1m30s"). Hash weights merge
// with the defaults; set a weight to 0 to disable that algorithm.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/steveyegge/mediasift/internal/coordinator"
	"github.com/steveyegge/mediasift/internal/cost"
	"github.com/steveyegge/mediasift/internal/envutil"
	"github.com/steveyegge/mediasift/internal/grouping"
	"github.com/steveyegge/mediasift/internal/storage"
	"github.com/steveyegge/mediasift/internal/tiers"
	"github.com/steveyegge/mediasift/internal/types"
)

// DefaultPath is read when no --config flag is given. A missing default
// file is not an error.
const DefaultPath = "mediasift.yaml"

// ProvidersConfig configures capability providers. API keys come only from
// the environment (ANTHROPIC_API_KEY, OPENAI_API_KEY).
type ProvidersConfig struct {
	// OpenAIBaseURL points the OpenAI provider at a compatible endpoint
	OpenAIBaseURL string `yaml:"openai_base_url"`
}

// Config is the complete configuration
type Config struct {
	Grouping     grouping.Config    `yaml:"grouping"`
	Tiers        []types.Tier       `yaml:"tiers"`
	Sufficiency  tiers.Criteria     `yaml:"sufficiency"`
	Instructions string             `yaml:"instructions"`
	Coordinator  coordinator.Config `yaml:"coordinator"`
	Budget       cost.Config        `yaml:"budget"`
	Checkpoint   storage.Config     `yaml:"checkpoint"`
	Providers    ProvidersConfig    `yaml:"providers"`
}

// Default returns the built-in configuration
func Default() *Config {
	tiersCfg := tiers.DefaultConfig()
	return &Config{
		Grouping:    grouping.DefaultConfig(),
		Tiers:       tiersCfg.Tiers,
		Sufficiency: tiersCfg.Criteria,
		Coordinator: coordinator.DefaultConfig(),
		Budget:      cost.DefaultConfig(),
		Checkpoint:  storage.DefaultConfig(),
	}
}

// Load reads path over the defaults and applies environment overrides.
// A missing file is an error unless path is DefaultPath or empty.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := cfg.Decode(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && path == DefaultPath:
		// defaults only
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode overlays YAML from r onto c. Unknown keys are rejected.
func (c *Config) Decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overlays MEDIASIFT_* environment variables onto every section
func (c *Config) ApplyEnv() error {
	if err := grouping.ApplyEnv(&c.Grouping); err != nil {
		return err
	}
	if err := c.Sufficiency.ApplyEnv(); err != nil {
		return err
	}
	if err := coordinator.ApplyEnv(&c.Coordinator); err != nil {
		return err
	}
	if err := cost.ApplyEnv(&c.Budget); err != nil {
		return err
	}
	if err := storage.ApplyEnv(&c.Checkpoint); err != nil {
		return err
	}
	envutil.String("MEDIASIFT_OPENAI_BASE_URL", &c.Providers.OpenAIBaseURL)
	return nil
}

// Validate checks every section, naming the section in the error
func (c *Config) Validate() error {
	if err := c.Checkpoint.Validate(); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	if err := c.Run().Validate(); err != nil {
		return err
	}
	return nil
}

// Run assembles the coordinator configuration from the file sections
func (c *Config) Run() coordinator.Config {
	run := c.Coordinator
	run.Grouping = c.Grouping
	run.Budget = c.Budget
	run.CheckpointInterval = c.Checkpoint.Interval
	run.Tiers = tiers.Config{
		Tiers:        c.Tiers,
		Criteria:     c.Sufficiency,
		CallTimeout:  c.Coordinator.CallTimeout,
		Instructions: c.Instructions,
	}
	return run
}

// ProviderNames returns the distinct providers named by the tiers, in tier order
func (c *Config) ProviderNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, t := range c.Tiers {
		if !seen[t.Provider] {
			seen[t.Provider] = true
			names = append(names, t.Provider)
		}
	}
	return names
}
