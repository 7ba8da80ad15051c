package types

import (
	"fmt"
	"strings"
)

// TierDerived marks results copied from a group representative
const TierDerived = "derived"

// AnalysisResult is the output of analysing one image
type AnalysisResult struct {
	ItemID      string              `json:"item_id"`
	Description string              `json:"description"`
	Tags        map[string][]string `json:"tags"`
	Prompt      string              `json:"prompt,omitempty"`
	Cost        float64             `json:"cost"`
	Tier        string              `json:"tier"`
	SourceTier  string              `json:"source_tier,omitempty"`  // set on derived results
	DerivedFrom string              `json:"derived_from,omitempty"` // representative item id
	Confidence  float64             `json:"confidence"`
	Raw         string              `json:"raw,omitempty"`
}

// IsDerived reports whether the result was propagated from a representative
func (r *AnalysisResult) IsDerived() bool {
	return r.Tier == TierDerived
}

// TagCount returns the total number of tags across all categories
func (r *AnalysisResult) TagCount() int {
	n := 0
	for _, tags := range r.Tags {
		n += len(tags)
	}
	return n
}

// PopulatedCategories returns the number of categories holding at least one tag
func (r *AnalysisResult) PopulatedCategories() int {
	n := 0
	for _, tags := range r.Tags {
		if len(tags) > 0 {
			n++
		}
	}
	return n
}

// Validate checks if the result has valid field values
func (r *AnalysisResult) Validate() error {
	if r.Confidence < 0.0 || r.Confidence > 1.0 {
		return fmt.Errorf("confidence must be between 0.0 and 1.0 (got %.2f)", r.Confidence)
	}
	if r.Cost < 0 {
		return fmt.Errorf("cost cannot be negative (got %.4f)", r.Cost)
	}
	if strings.TrimSpace(r.Tier) == "" {
		return fmt.Errorf("tier is required")
	}
	if r.IsDerived() {
		if r.DerivedFrom == "" {
			return fmt.Errorf("derived_from must be set on derived results")
		}
		if r.Cost != 0 {
			return fmt.Errorf("derived results must not carry cost (got %.4f)", r.Cost)
		}
	}
	return nil
}

// Pricing is the per-million-token price of a tier
type Pricing struct {
	InputPerMTok  float64 `json:"input_per_mtok" yaml:"input_per_mtok"`
	OutputPerMTok float64 `json:"output_per_mtok" yaml:"output_per_mtok"`
}

// Cost returns the price of one call with the given token usage
func (p Pricing) Cost(inputTokens, outputTokens int64) float64 {
	return float64(inputTokens)/1_000_000*p.InputPerMTok + float64(outputTokens)/1_000_000*p.OutputPerMTok
}

// Tier is one cost/quality level of the analysis capability.
// Tiers are kept in a list ordered cheapest first.
type Tier struct {
	Name          string  `json:"name" yaml:"name"`
	Provider      string  `json:"provider" yaml:"provider"` // "anthropic", "openai", ...
	Model         string  `json:"model" yaml:"model"`
	EstimatedCost float64 `json:"estimated_cost" yaml:"estimated_cost"` // per call, used for budget reservation
	Pricing       Pricing `json:"pricing" yaml:"pricing"`
	MaxTokens     int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

const (
	// DefaultMaxTokens caps a reply when the tier sets no max_tokens
	DefaultMaxTokens = 1024

	// ReservedInputTokens bounds the prompt of one image call: a
	// downscaled image plus the instructions
	ReservedInputTokens = 2000
)

// OutputTokens returns the reply cap of a call on this tier
func (t Tier) OutputTokens() int {
	if t.MaxTokens > 0 {
		return t.MaxTokens
	}
	return DefaultMaxTokens
}

// Reservation is the amount held against the budget before calling the
// tier: the estimate, or the priced worst case when that is higher.
func (t Tier) Reservation() float64 {
	return max(t.EstimatedCost, t.Pricing.Cost(ReservedInputTokens, int64(t.OutputTokens())))
}

// Validate checks if the tier has valid field values
func (t Tier) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("tier name is required")
	}
	if strings.TrimSpace(t.Provider) == "" {
		return fmt.Errorf("tier %s: provider is required", t.Name)
	}
	if t.EstimatedCost < 0 {
		return fmt.Errorf("tier %s: estimated_cost cannot be negative (got %.4f)", t.Name, t.EstimatedCost)
	}
	if t.Pricing.InputPerMTok < 0 || t.Pricing.OutputPerMTok < 0 {
		return fmt.Errorf("tier %s: pricing cannot be negative", t.Name)
	}
	if t.MaxTokens < 0 {
		return fmt.Errorf("tier %s: max_tokens cannot be negative (got %d)", t.Name, t.MaxTokens)
	}
	return nil
}
