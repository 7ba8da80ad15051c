package propagation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/mediasift/internal/types"
)

func representative() *types.AnalysisResult {
	return &types.AnalysisResult{
		ItemID:      "a",
		Description: "a lighthouse on a cliff at sunset",
		Tags:        map[string][]string{"scene": {"coast", "cliff"}, "mood": {"calm"}},
		Prompt:      "lighthouse, sunset",
		Cost:        0.02,
		Tier:        "premium",
		Confidence:  0.8,
		Raw:         "{...}",
	}
}

func TestPropagate(t *testing.T) {
	rep := representative()
	g := &types.Group{
		Representative: "a",
		Members:        []string{"a", "b", "c"},
		Confidence:     map[string]float64{"a": 1, "b": 0.95, "c": 1},
		Result:         rep,
	}

	derived, err := Propagate(g)
	require.NoError(t, err)
	require.Len(t, derived, 2)
	assert.NotContains(t, derived, "a")

	b := derived["b"]
	assert.Equal(t, "b", b.ItemID)
	assert.Equal(t, 0.0, b.Cost)
	assert.Equal(t, types.TierDerived, b.Tier)
	assert.Equal(t, "premium", b.SourceTier)
	assert.Equal(t, "a", b.DerivedFrom)
	assert.InDelta(t, 0.76, b.Confidence, 1e-12)
	assert.Equal(t, rep.Description, b.Description)
	assert.Equal(t, rep.Tags, b.Tags)
	assert.Empty(t, b.Raw)
	require.NoError(t, b.Validate())

	assert.InDelta(t, 0.8, derived["c"].Confidence, 1e-12)
	for _, r := range derived {
		assert.Greater(t, r.Confidence, 0.0)
		assert.LessOrEqual(t, r.Confidence, 1.0)
	}
}

func TestPropagateDeepCopies(t *testing.T) {
	rep := representative()
	g := &types.Group{
		Representative: "a",
		Members:        []string{"a", "b", "c"},
		Confidence:     map[string]float64{"a": 1, "b": 0.9, "c": 0.9},
		Result:         rep,
	}

	derived, err := Propagate(g)
	require.NoError(t, err)

	derived["b"].Tags["scene"][0] = "desert"
	derived["b"].Tags["new"] = []string{"x"}
	derived["b"].Description = "changed"

	assert.Equal(t, "coast", rep.Tags["scene"][0])
	assert.NotContains(t, rep.Tags, "new")
	assert.Equal(t, "coast", derived["c"].Tags["scene"][0])
	assert.Equal(t, representative(), rep)
}

func TestDeriveFromDerived(t *testing.T) {
	first := Derive(representative(), "b", 0.9)
	second := Derive(first, "c", 0.9)

	assert.Equal(t, "premium", second.SourceTier)
	assert.Equal(t, "a", second.DerivedFrom)
	assert.InDelta(t, 0.8*0.9*0.9, second.Confidence, 1e-12)
}

func TestPropagateErrors(t *testing.T) {
	tests := []struct {
		name    string
		group   *types.Group
		wantErr string
	}{
		{"nil group", nil, "no representative result"},
		{"no result", &types.Group{Representative: "a", Members: []string{"a"}}, "no representative result"},
		{"foreign result", &types.Group{
			Representative: "z", Members: []string{"z"}, Confidence: map[string]float64{"z": 1}, Result: representative(),
		}, "not representative"},
		{"missing similarity", &types.Group{
			Representative: "a", Members: []string{"a", "b"}, Confidence: map[string]float64{"a": 1}, Result: representative(),
		}, "missing similarity"},
		{"zero similarity", &types.Group{
			Representative: "a", Members: []string{"a", "b"}, Confidence: map[string]float64{"a": 1, "b": 0}, Result: representative(),
		}, "must be in (0, 1]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Propagate(tt.group)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestPropagateSingleton(t *testing.T) {
	derived, err := Propagate(&types.Group{
		Representative: "a", Members: []string{"a"}, Confidence: map[string]float64{"a": 1}, Result: representative(),
	})
	require.NoError(t, err)
	assert.Empty(t, derived)
}
