package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		in      string
		want    Algorithm
		wantErr bool
	}{
		{"average", AlgorithmAverage, false},
		{"aHash", AlgorithmAverage, false},
		{"dhash", AlgorithmDifference, false},
		{" frequency ", AlgorithmFrequency, false},
		{"phash", AlgorithmFrequency, false},
		{"wavelet", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAlgorithm(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAnalysisResultValidate(t *testing.T) {
	tests := []struct {
		name     string
		result   AnalysisResult
		errorMsg string
	}{
		{
			name:   "valid direct result",
			result: AnalysisResult{ItemID: "a", Tier: "cheap", Confidence: 0.9, Cost: 0.01},
		},
		{
			name:   "valid derived result",
			result: AnalysisResult{ItemID: "b", Tier: TierDerived, DerivedFrom: "a", Confidence: 0.8},
		},
		{
			name:     "confidence too high",
			result:   AnalysisResult{Tier: "cheap", Confidence: 1.2},
			errorMsg: "confidence must be between",
		},
		{
			name:     "derived without source",
			result:   AnalysisResult{Tier: TierDerived, Confidence: 0.5},
			errorMsg: "derived_from must be set",
		},
		{
			name:     "derived with cost",
			result:   AnalysisResult{Tier: TierDerived, DerivedFrom: "a", Confidence: 0.5, Cost: 0.2},
			errorMsg: "must not carry cost",
		},
		{
			name:     "missing tier",
			result:   AnalysisResult{Confidence: 0.5},
			errorMsg: "tier is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.result.Validate()
			if tt.errorMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestTagCounting(t *testing.T) {
	r := AnalysisResult{Tags: map[string][]string{
		"subjects": {"dog", "ball"},
		"scene":    {"park"},
		"mood":     nil,
	}}
	assert.Equal(t, 3, r.TagCount())
	assert.Equal(t, 2, r.PopulatedCategories())
}

func TestGroupOthers(t *testing.T) {
	g := Group{Representative: "b", Members: []string{"b", "c", "a"}}
	assert.Equal(t, []string{"c", "a"}, g.Others())
	assert.Equal(t, 3, g.Size())
}

func TestProgressStateCheckpoint(t *testing.T) {
	s := NewProgressState(4)
	s.Processed["z"] = true
	s.Processed["a"] = true
	s.Failed["q"] = "boom"
	s.CumulativeCost = 0.5
	s.Counts = Counts{Processed: 3, Succeeded: 2, Failed: 1}

	now := time.Now()
	cp := s.Checkpoint(now)
	assert.Equal(t, []string{"a", "z"}, cp.ProcessedIdentifiers)
	assert.Equal(t, "boom", cp.FailedIdentifiers["q"])
	assert.Equal(t, now, cp.SavedAt)
	require.NoError(t, cp.Validate())

	// The checkpoint must not alias the state's maps
	cp.FailedIdentifiers["q"] = "changed"
	assert.Equal(t, "boom", s.Failed["q"])
}

func TestCheckpointValidate(t *testing.T) {
	cp := Checkpoint{
		ProcessedIdentifiers: []string{"a", "a"},
	}
	assert.ErrorContains(t, cp.Validate(), "duplicate")

	cp = Checkpoint{
		ProcessedIdentifiers: []string{"a"},
		FailedIdentifiers:    map[string]string{"a": "x"},
	}
	assert.ErrorContains(t, cp.Validate(), "both processed and failed")
}

func TestProgressStateClone(t *testing.T) {
	s := NewProgressState(1)
	s.Processed["a"] = true
	c := s.Clone()
	c.Processed["b"] = true
	assert.False(t, s.Processed["b"])
}

func TestTierReservation(t *testing.T) {
	tests := []struct {
		name string
		tier Tier
		want float64
	}{
		{"estimate only", Tier{EstimatedCost: 0.01}, 0.01},
		{"nothing set", Tier{}, 0},
		{
			"priced worst case above estimate",
			Tier{EstimatedCost: 0.001, Pricing: Pricing{InputPerMTok: 3, OutputPerMTok: 15}, MaxTokens: 1000},
			0.006 + 0.015,
		},
		{
			"default reply cap",
			Tier{Pricing: Pricing{OutputPerMTok: 1}},
			float64(DefaultMaxTokens) / 1_000_000,
		},
		{
			"estimate above priced worst case",
			Tier{EstimatedCost: 1, Pricing: Pricing{InputPerMTok: 3, OutputPerMTok: 15}},
			1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.tier.Reservation(), 1e-12)
		})
	}
}
