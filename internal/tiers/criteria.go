// Package tiers escalates an analysis across cost/quality tiers until the
// result is good enough.
package tiers

import (
	"fmt"
	"strings"

	"github.com/steveyegge/mediasift/internal/envutil"
	"github.com/steveyegge/mediasift/internal/types"
)

// Criteria decides whether a result is good enough to stop escalating
type Criteria struct {
	// MinTags is the minimum total number of tags (default: 5)
	MinTags int `yaml:"min_tags"`
	// MinDescriptionLength is the minimum description length in characters (default: 50)
	MinDescriptionLength int `yaml:"min_description_length"`
	// MinCategories is the minimum number of populated tag categories (default: 2)
	MinCategories int `yaml:"min_categories"`
}

// DefaultCriteria returns the default sufficiency thresholds
func DefaultCriteria() Criteria {
	return Criteria{
		MinTags:              5,
		MinDescriptionLength: 50,
		MinCategories:        2,
	}
}

// Validate checks if the criteria have valid values
func (c Criteria) Validate() error {
	if c.MinTags < 0 {
		return fmt.Errorf("min_tags cannot be negative (got %d)", c.MinTags)
	}
	if c.MinDescriptionLength < 0 {
		return fmt.Errorf("min_description_length cannot be negative (got %d)", c.MinDescriptionLength)
	}
	if c.MinCategories < 0 {
		return fmt.Errorf("min_categories cannot be negative (got %d)", c.MinCategories)
	}
	return nil
}

// Shortfalls lists the ways r falls short; empty means sufficient
func (c Criteria) Shortfalls(r *types.AnalysisResult) []string {
	if r == nil {
		return []string{"no result"}
	}
	var out []string
	if n := r.TagCount(); n < c.MinTags {
		out = append(out, fmt.Sprintf("%d tags < %d", n, c.MinTags))
	}
	if n := len([]rune(strings.TrimSpace(r.Description))); n < c.MinDescriptionLength {
		out = append(out, fmt.Sprintf("description %d chars < %d", n, c.MinDescriptionLength))
	}
	if n := r.PopulatedCategories(); n < c.MinCategories {
		out = append(out, fmt.Sprintf("%d categories < %d", n, c.MinCategories))
	}
	return out
}

// Sufficient reports whether r meets every threshold
func (c Criteria) Sufficient(r *types.AnalysisResult) bool {
	return len(c.Shortfalls(r)) == 0
}

// ApplyEnv overlays MEDIASIFT_SUFFICIENCY_* variables onto c
func (c *Criteria) ApplyEnv() error {
	if err := envutil.Int("MEDIASIFT_SUFFICIENCY_MIN_TAGS", &c.MinTags); err != nil {
		return err
	}
	if err := envutil.Int("MEDIASIFT_SUFFICIENCY_MIN_DESCRIPTION_LENGTH", &c.MinDescriptionLength); err != nil {
		return err
	}
	return envutil.Int("MEDIASIFT_SUFFICIENCY_MIN_CATEGORIES", &c.MinCategories)
}
