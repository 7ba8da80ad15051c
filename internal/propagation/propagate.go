// Package propagation derives member results from a group representative's analysis.
package propagation

import (
	"fmt"

	"github.com/steveyegge/mediasift/internal/types"
)

// Derive copies rep for memberID, attenuating confidence by similarity.
// The copy shares no maps or slices with rep.
func Derive(rep *types.AnalysisResult, memberID string, similarity float64) *types.AnalysisResult {
	tags := make(map[string][]string, len(rep.Tags))
	for category, values := range rep.Tags {
		tags[category] = append([]string(nil), values...)
	}

	source := rep.Tier
	if rep.IsDerived() {
		source = rep.SourceTier
	}
	origin := rep.ItemID
	if rep.DerivedFrom != "" {
		origin = rep.DerivedFrom
	}

	return &types.AnalysisResult{
		ItemID:      memberID,
		Description: rep.Description,
		Tags:        tags,
		Prompt:      rep.Prompt,
		Cost:        0,
		Tier:        types.TierDerived,
		SourceTier:  source,
		DerivedFrom: origin,
		Confidence:  rep.Confidence * similarity,
	}
}

// Propagate returns a derived result for every non-representative member of
// g, keyed by item id. g.Result must hold the representative's result; it is
// never modified.
func Propagate(g *types.Group) (map[string]*types.AnalysisResult, error) {
	if g == nil || g.Result == nil {
		return nil, fmt.Errorf("group has no representative result")
	}
	if g.Result.ItemID != "" && g.Result.ItemID != g.Representative {
		return nil, fmt.Errorf("result belongs to %s, not representative %s", g.Result.ItemID, g.Representative)
	}

	derived := make(map[string]*types.AnalysisResult, len(g.Members)-1)
	for _, id := range g.Others() {
		similarity, ok := g.Confidence[id]
		if !ok {
			return nil, fmt.Errorf("missing similarity for member %s", id)
		}
		if similarity <= 0 || similarity > 1 {
			return nil, fmt.Errorf("similarity for member %s must be in (0, 1] (got %.4f)", id, similarity)
		}
		derived[id] = Derive(g.Result, id, similarity)
	}
	return derived, nil
}
