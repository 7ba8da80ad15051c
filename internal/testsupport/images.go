// Package testsupport holds helpers shared by package tests.
package testsupport

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
)

// NoiseImage returns a size×size grayscale image of seeded random noise.
// Different seeds produce unrelated fingerprints.
func NoiseImage(seed int64, size int) *image.Gray {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, size, size))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.Intn(256))
	}
	return img
}

// SplitImage returns an image whose left half is dark and right half bright
func SplitImage(size int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			v := uint8(20)
			if x >= size/2 {
				v = 220
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

// GradientImage returns a horizontal gradient brightening left to right,
// offset by shift (clamped to stay below 256)
func GradientImage(size int, shift int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			v := x*200/size + shift
			if v > 255 {
				v = 255
			}
			img.SetGray(x, y, color.Gray{Y: uint8(v)})
		}
	}
	return img
}

// Brighten returns a copy of img with every pixel raised by delta (clamped)
func Brighten(img *image.Gray, delta int) *image.Gray {
	out := image.NewGray(img.Rect)
	for i, p := range img.Pix {
		v := int(p) + delta
		if v > 255 {
			v = 255
		}
		out.Pix[i] = uint8(v)
	}
	return out
}

// EncodePNG encodes img, failing the test on error
func EncodePNG(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

// NoisePNG returns PNG bytes of NoiseImage(seed, 64)
func NoisePNG(t testing.TB, seed int64) []byte {
	t.Helper()
	return EncodePNG(t, NoiseImage(seed, 64))
}

// WriteImage writes PNG bytes of img under dir/name and returns the path
func WriteImage(t testing.TB, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, EncodePNG(t, img), 0o644); err != nil {
		t.Fatalf("failed to write image: %v", err)
	}
	return path
}
