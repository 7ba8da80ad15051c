// Package ai provides the vision analysis capability and its providers.
package ai

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/steveyegge/mediasift/internal/types"
)

// Capability analyses one image on the given tier.
// Errors are *CapabilityError.
type Capability interface {
	Invoke(ctx context.Context, tier types.Tier, image []byte, instructions string) (*Response, error)
}

// Availability is implemented by capabilities that can refuse a tier
// without calling out, such as a Router with an open circuit.
type Availability interface {
	Available(tier types.Tier) error
}

// CapabilityFunc adapts a function to the Capability interface
type CapabilityFunc func(ctx context.Context, tier types.Tier, image []byte, instructions string) (*Response, error)

// Invoke calls f
func (f CapabilityFunc) Invoke(ctx context.Context, tier types.Tier, image []byte, instructions string) (*Response, error) {
	return f(ctx, tier, image, instructions)
}

// Response is a parsed capability answer
type Response struct {
	Description  string
	Tags         map[string][]string
	Prompt       string
	Confidence   float64
	Cost         float64
	InputTokens  int64
	OutputTokens int64
	Raw          string
}

// ToResult converts the response into an analysis result for itemID.
// Confidence is clamped to [0.01, 1] whichever capability built r.
func (r *Response) ToResult(itemID string, tier types.Tier) *types.AnalysisResult {
	tags := make(map[string][]string, len(r.Tags))
	for category, values := range r.Tags {
		tags[category] = append([]string(nil), values...)
	}
	return &types.AnalysisResult{
		ItemID:      itemID,
		Description: r.Description,
		Tags:        tags,
		Prompt:      r.Prompt,
		Cost:        r.Cost,
		Tier:        tier.Name,
		Confidence:  clampConfidence(r.Confidence),
		Raw:         r.Raw,
	}
}

func clampConfidence(c float64) float64 {
	switch {
	case math.IsNaN(c), c < 0.01:
		return 0.01
	case c > 1:
		return 1
	}
	return c
}

type analysisPayload struct {
	Description string              `json:"description"`
	Tags        map[string][]string `json:"tags"`
	Prompt      string              `json:"prompt"`
	Confidence  *float64            `json:"confidence"`
}

// parseAnalysis turns model text into a Response. Tags are lowercased,
// trimmed and deduplicated; confidence is clamped to [0.01, 1] and
// defaults to 1 when the model omits it.
func parseAnalysis(text string) (*Response, error) {
	parsed := Parse[analysisPayload](text, ParseOptions{Context: "analysis"})
	if !parsed.Success {
		return nil, NewError(ErrorTransient, fmt.Errorf("%w: %s", ErrMalformedResponse, parsed.Error))
	}
	payload := parsed.Data

	confidence := 1.0
	if payload.Confidence != nil {
		confidence = clampConfidence(*payload.Confidence)
	}

	return &Response{
		Description: strings.TrimSpace(payload.Description),
		Tags:        normalizeTags(payload.Tags),
		Prompt:      strings.TrimSpace(payload.Prompt),
		Confidence:  confidence,
		Raw:         text,
	}, nil
}

func normalizeTags(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for category, values := range in {
		category = strings.ToLower(strings.TrimSpace(category))
		if category == "" {
			continue
		}
		seen := make(map[string]bool)
		for _, existing := range out[category] {
			seen[existing] = true
		}
		for _, v := range values {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			out[category] = append(out[category], v)
		}
	}
	for category := range out {
		sort.Strings(out[category])
	}
	return out
}
