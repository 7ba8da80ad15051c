package imagehash

import (
	"errors"
	"testing"

	"github.com/steveyegge/mediasift/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fp(alg types.Algorithm, value string) types.Fingerprint {
	return types.Fingerprint{Algorithm: alg, Bits: len(value) * 4, Value: value}
}

func TestHammingSelfIsZero(t *testing.T) {
	for _, h := range []string{"0000000000000000", "ffffffffffffffff", "f0f0f0f0f0f0f0f0", "0123456789abcdef", "8a"} {
		d, err := Hamming(h, h)
		require.NoError(t, err)
		assert.Equal(t, 0, d, "hamming(%s,%s)", h, h)

		sim, err := Similarity(fp(types.AlgorithmFrequency, h), fp(types.AlgorithmFrequency, h))
		require.NoError(t, err)
		assert.Equal(t, 1.0, sim)
	}
}

func TestHammingSingleBit(t *testing.T) {
	d, err := Hamming("f0f0f0f0f0f0f0f0", "f0f0f0f0f0f0f0f1")
	require.NoError(t, err)
	assert.Equal(t, 1, d)

	sim, err := Similarity(
		fp(types.AlgorithmAverage, "f0f0f0f0f0f0f0f0"),
		fp(types.AlgorithmAverage, "f0f0f0f0f0f0f0f1"),
	)
	require.NoError(t, err)
	assert.InDelta(t, 63.0/64.0, sim, 1e-9)
	assert.InDelta(t, 0.984, sim, 0.001)
}

func TestHammingCases(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want int
	}{
		{"all bits differ", "0000", "ffff", 16},
		{"case insensitive", "ABCD", "abcd", 0},
		{"nibble", "0", "7", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Hamming(tt.a, tt.b)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d)
		})
	}
}

func TestHammingErrors(t *testing.T) {
	_, err := Hamming("f0f0", "f0f0f0")
	assert.True(t, errors.Is(err, ErrLengthMismatch))

	_, err = Hamming("zz", "00")
	assert.ErrorContains(t, err, "invalid hex digit")

	_, err = Similarity(fp(types.AlgorithmAverage, "00"), fp(types.AlgorithmDifference, "00"))
	assert.True(t, errors.Is(err, ErrAlgorithmMismatch))
}

func TestMetricScore(t *testing.T) {
	m := DefaultMetric()
	require.NoError(t, m.Validate())
	assert.Equal(t, []types.Algorithm{types.AlgorithmDifference, types.AlgorithmFrequency}, m.Algorithms())

	a := Set{
		types.AlgorithmFrequency:  fp(types.AlgorithmFrequency, "0000000000000000"),
		types.AlgorithmDifference: fp(types.AlgorithmDifference, "0000000000000000"),
	}
	b := Set{
		// 16 bits differ in frequency: 0.75; identical difference: 1.0
		types.AlgorithmFrequency:  fp(types.AlgorithmFrequency, "ffff000000000000"),
		types.AlgorithmDifference: fp(types.AlgorithmDifference, "0000000000000000"),
	}

	score, err := m.Score(a, a)
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)

	score, err = m.Score(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 0.7*0.75+0.3*1.0, score, 1e-9)

	delete(b, types.AlgorithmDifference)
	_, err = m.Score(a, b)
	assert.True(t, errors.Is(err, ErrMissingFingerprint))
}

func TestMetricValidate(t *testing.T) {
	assert.Error(t, Metric{}.Validate())
	assert.Error(t, Metric{Weights: map[types.Algorithm]float64{types.AlgorithmAverage: -1}}.Validate())
	assert.Error(t, Metric{Weights: map[types.Algorithm]float64{"wavelet": 1}}.Validate())
	assert.NoError(t, Metric{Weights: map[types.Algorithm]float64{types.AlgorithmAverage: 1}}.Validate())
}
