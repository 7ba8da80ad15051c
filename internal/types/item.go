package types

import (
	"fmt"
	"strings"
)

// Item is one piece of content submitted for analysis
type Item struct {
	ID   string `json:"id"`
	Path string `json:"path,omitempty"`
}

// Algorithm identifies a perceptual hashing method
type Algorithm string

const (
	// AlgorithmAverage compares every pixel against the mean brightness (aHash)
	AlgorithmAverage Algorithm = "average"
	// AlgorithmDifference compares every pixel against its right neighbour (dHash)
	AlgorithmDifference Algorithm = "difference"
	// AlgorithmFrequency thresholds low-frequency cosine coefficients at their median (pHash)
	AlgorithmFrequency Algorithm = "frequency"
)

// IsValid checks if the algorithm value is valid
func (a Algorithm) IsValid() bool {
	switch a {
	case AlgorithmAverage, AlgorithmDifference, AlgorithmFrequency:
		return true
	}
	return false
}

// ParseAlgorithm converts a user-supplied name into an Algorithm.
// Accepts the short names used elsewhere for the same methods (ahash, dhash, phash).
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "average", "ahash":
		return AlgorithmAverage, nil
	case "difference", "dhash":
		return AlgorithmDifference, nil
	case "frequency", "phash":
		return AlgorithmFrequency, nil
	}
	return "", fmt.Errorf("unknown hash algorithm %q", s)
}

// Fingerprint is an immutable perceptual hash of an image
type Fingerprint struct {
	Algorithm Algorithm `json:"algorithm"`
	Bits      int       `json:"bits"`
	Value     string    `json:"value"` // hex, zero-padded to Bits/4 characters
}

func (f Fingerprint) String() string {
	return fmt.Sprintf("%s:%s", f.Algorithm, f.Value)
}

// Group is a set of similar items that share one analysis
type Group struct {
	Representative string             `json:"representative"`
	Members        []string           `json:"members"` // input order, representative first
	Confidence     map[string]float64 `json:"confidence"`
	Result         *AnalysisResult    `json:"result,omitempty"`

	// Forced is set when the representative could not be fingerprinted,
	// making it a singleton regardless of content.
	Forced bool `json:"forced,omitempty"`
}

// Size returns the number of members, representative included
func (g *Group) Size() int {
	return len(g.Members)
}

// Others returns the non-representative members in input order
func (g *Group) Others() []string {
	others := make([]string, 0, len(g.Members))
	for _, id := range g.Members {
		if id != g.Representative {
			others = append(others, id)
		}
	}
	return others
}
