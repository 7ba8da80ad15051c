package imagehash

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"math/big"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/steveyegge/mediasift/internal/types"
)

// ErrEmptyImage is returned when an image has no pixels
var ErrEmptyImage = errors.New("image has no pixels")

// Set holds the fingerprints of one image, keyed by algorithm
type Set map[types.Algorithm]types.Fingerprint

// Codec produces fingerprints with fixed resize parameters.
// The zero value is not usable; use NewCodec.
type Codec struct {
	// Size is N, the side of the hashed block. Fingerprints have Size*Size bits.
	Size int
	// Factor is F, the oversampling factor used before the frequency transform.
	Factor int
	// Filter is the resampling filter used when downscaling.
	Filter imaging.ResampleFilter
}

// NewCodec returns a codec producing 64-bit fingerprints
func NewCodec() *Codec {
	return &Codec{
		Size:   8,
		Factor: 4,
		Filter: imaging.Lanczos,
	}
}

// Bits returns the width of the fingerprints this codec produces
func (c *Codec) Bits() int {
	return c.Size * c.Size
}

// Validate checks the codec parameters
func (c *Codec) Validate() error {
	if c.Size < 2 || c.Size > 32 {
		return fmt.Errorf("hash size must be between 2 and 32 (got %d)", c.Size)
	}
	if c.Factor < 1 || c.Factor > 8 {
		return fmt.Errorf("frequency factor must be between 1 and 8 (got %d)", c.Factor)
	}
	return nil
}

// Decode decodes raw image bytes, honouring EXIF orientation
func (c *Codec) Decode(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// Compute fingerprints an already decoded image
func (c *Codec) Compute(img image.Image, alg types.Algorithm) (types.Fingerprint, error) {
	if img == nil || img.Bounds().Empty() {
		return types.Fingerprint{}, ErrEmptyImage
	}

	var bits []bool
	switch alg {
	case types.AlgorithmAverage:
		bits = c.averageBits(img)
	case types.AlgorithmDifference:
		bits = c.differenceBits(img)
	case types.AlgorithmFrequency:
		bits = c.frequencyBits(img)
	default:
		return types.Fingerprint{}, fmt.Errorf("unknown hash algorithm %q", alg)
	}

	return types.Fingerprint{
		Algorithm: alg,
		Bits:      len(bits),
		Value:     encodeBits(bits),
	}, nil
}

// FromBytes decodes data and computes one fingerprint per requested algorithm.
// Any decode or resize failure yields ok=false rather than an error: callers
// treat an unfingerprintable item as unknown, never as similar.
func (c *Codec) FromBytes(data []byte, algs ...types.Algorithm) (set Set, ok bool) {
	defer func() {
		// imaging panics on some degenerate inputs (e.g. absurd dimensions)
		if r := recover(); r != nil {
			set, ok = nil, false
		}
	}()

	img, err := c.Decode(data)
	if err != nil {
		return nil, false
	}

	set = make(Set, len(algs))
	for _, alg := range algs {
		fp, err := c.Compute(img, alg)
		if err != nil {
			return nil, false
		}
		set[alg] = fp
	}
	return set, true
}

// grayPixels downscales img to w×h and returns its luminance, row-major
func (c *Codec) grayPixels(img image.Image, w, h int) [][]float64 {
	small := imaging.Grayscale(imaging.Resize(img, w, h, c.Filter))
	pix := make([][]float64, h)
	for y := 0; y < h; y++ {
		row := make([]float64, w)
		for x := 0; x < w; x++ {
			// Grayscale output has R == G == B
			row[x] = float64(small.Pix[y*small.Stride+x*4])
		}
		pix[y] = row
	}
	return pix
}

func (c *Codec) averageBits(img image.Image) []bool {
	n := c.Size
	pix := c.grayPixels(img, n, n)

	var sum float64
	for _, row := range pix {
		for _, p := range row {
			sum += p
		}
	}
	mean := sum / float64(n*n)

	bits := make([]bool, 0, n*n)
	for _, row := range pix {
		for _, p := range row {
			bits = append(bits, p > mean)
		}
	}
	return bits
}

func (c *Codec) differenceBits(img image.Image) []bool {
	n := c.Size
	pix := c.grayPixels(img, n+1, n)

	bits := make([]bool, 0, n*n)
	for _, row := range pix {
		for x := 0; x < n; x++ {
			bits = append(bits, row[x] > row[x+1])
		}
	}
	return bits
}

func (c *Codec) frequencyBits(img image.Image) []bool {
	n := c.Size
	m := n * c.Factor
	coeffs := dct2D(c.grayPixels(img, m, m), n)

	flat := make([]float64, 0, n*n)
	for _, row := range coeffs {
		flat = append(flat, row...)
	}
	med := median(flat)

	bits := make([]bool, len(flat))
	for i, v := range flat {
		bits[i] = v > med
	}
	return bits
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// encodeBits renders bits (most significant first) as hex, zero-padded to
// ceil(len/4) characters
func encodeBits(bits []bool) string {
	v := new(big.Int)
	for _, b := range bits {
		v.Lsh(v, 1)
		if b {
			v.SetBit(v, 0, 1)
		}
	}
	width := (len(bits) + 3) / 4
	s := v.Text(16)
	if len(s) < width {
		s = strings.Repeat("0", width-len(s)) + s
	}
	return s
}
