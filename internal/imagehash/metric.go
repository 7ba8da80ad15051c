package imagehash

import (
	"errors"
	"fmt"
	"math/bits"
	"sort"

	"github.com/steveyegge/mediasift/internal/types"
)

var (
	// ErrLengthMismatch is returned when comparing fingerprints of different widths
	ErrLengthMismatch = errors.New("fingerprint length mismatch")
	// ErrAlgorithmMismatch is returned when comparing fingerprints of different algorithms
	ErrAlgorithmMismatch = errors.New("fingerprint algorithm mismatch")
	// ErrMissingFingerprint is returned when a weighted algorithm has no fingerprint in a set
	ErrMissingFingerprint = errors.New("missing fingerprint")
)

// Hamming returns the number of differing bits between two hex fingerprints
func Hamming(a, b string) (int, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d hex digits", ErrLengthMismatch, len(a), len(b))
	}
	dist := 0
	for i := 0; i < len(a); i++ {
		x, ok := nibble(a[i])
		if !ok {
			return 0, fmt.Errorf("invalid hex digit %q at position %d", a[i], i)
		}
		y, ok := nibble(b[i])
		if !ok {
			return 0, fmt.Errorf("invalid hex digit %q at position %d", b[i], i)
		}
		dist += bits.OnesCount8(x ^ y)
	}
	return dist, nil
}

func nibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// Similarity returns 1 - hamming/bits for two fingerprints of the same algorithm and width
func Similarity(a, b types.Fingerprint) (float64, error) {
	if a.Algorithm != b.Algorithm {
		return 0, fmt.Errorf("%w: %s vs %s", ErrAlgorithmMismatch, a.Algorithm, b.Algorithm)
	}
	if a.Bits != b.Bits {
		return 0, fmt.Errorf("%w: %d vs %d bits", ErrLengthMismatch, a.Bits, b.Bits)
	}
	dist, err := Hamming(a.Value, b.Value)
	if err != nil {
		return 0, err
	}
	width := a.Bits
	if width <= 0 {
		width = len(a.Value) * 4
	}
	if width == 0 {
		return 1, nil
	}
	return 1 - float64(dist)/float64(width), nil
}

// Metric blends per-algorithm similarities into one composite score
type Metric struct {
	Weights map[types.Algorithm]float64 `yaml:"weights"`
}

// DefaultMetric weights the frequency hash 0.7 and the difference hash 0.3
func DefaultMetric() Metric {
	return Metric{Weights: map[types.Algorithm]float64{
		types.AlgorithmFrequency:  0.7,
		types.AlgorithmDifference: 0.3,
	}}
}

// Validate checks that weights are non-negative and at least one is positive
func (m Metric) Validate() error {
	total := 0.0
	for alg, w := range m.Weights {
		if !alg.IsValid() {
			return fmt.Errorf("unknown hash algorithm %q in weights", alg)
		}
		if w < 0 {
			return fmt.Errorf("weight for %s cannot be negative (got %.2f)", alg, w)
		}
		total += w
	}
	if total <= 0 {
		return fmt.Errorf("at least one hash weight must be positive")
	}
	return nil
}

// Algorithms returns the algorithms with a positive weight, in stable order
func (m Metric) Algorithms() []types.Algorithm {
	algs := make([]types.Algorithm, 0, len(m.Weights))
	for alg, w := range m.Weights {
		if w > 0 {
			algs = append(algs, alg)
		}
	}
	sort.Slice(algs, func(i, j int) bool { return algs[i] < algs[j] })
	return algs
}

// Score returns the weighted mean similarity of two fingerprint sets
func (m Metric) Score(a, b Set) (float64, error) {
	var sum, total float64
	for _, alg := range m.Algorithms() {
		fa, ok := a[alg]
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrMissingFingerprint, alg)
		}
		fb, ok := b[alg]
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrMissingFingerprint, alg)
		}
		sim, err := Similarity(fa, fb)
		if err != nil {
			return 0, err
		}
		w := m.Weights[alg]
		sum += w * sim
		total += w
	}
	if total == 0 {
		return 0, fmt.Errorf("at least one hash weight must be positive")
	}
	return sum / total, nil
}
