package imagehash

import "math"

// dct2D returns the top-left keep×keep block of the orthonormal 2D DCT-II of
// a square matrix. out[v][u] holds vertical frequency v, horizontal frequency u.
func dct2D(pix [][]float64, keep int) [][]float64 {
	n := len(pix)
	if keep > n {
		keep = n
	}
	basis := cosineBasis(n, keep)

	// Rows first: tmp[y][u]
	tmp := make([][]float64, n)
	for y := 0; y < n; y++ {
		tmp[y] = make([]float64, keep)
		for u := 0; u < keep; u++ {
			var sum float64
			for x := 0; x < n; x++ {
				sum += pix[y][x] * basis[u][x]
			}
			tmp[y][u] = sum
		}
	}

	out := make([][]float64, keep)
	for v := 0; v < keep; v++ {
		out[v] = make([]float64, keep)
		for u := 0; u < keep; u++ {
			var sum float64
			for y := 0; y < n; y++ {
				sum += tmp[y][u] * basis[v][y]
			}
			out[v][u] = sum
		}
	}
	return out
}

// cosineBasis returns the scaled DCT-II basis: alpha(k)*cos(pi*(2x+1)*k/2n)
// with alpha(0)=sqrt(1/n) and alpha(k)=sqrt(2/n) otherwise
func cosineBasis(n, keep int) [][]float64 {
	dc := math.Sqrt(1 / float64(n))
	ac := math.Sqrt(2 / float64(n))

	basis := make([][]float64, keep)
	for k := 0; k < keep; k++ {
		alpha := ac
		if k == 0 {
			alpha = dc
		}
		basis[k] = make([]float64, n)
		for x := 0; x < n; x++ {
			basis[k][x] = alpha * math.Cos(math.Pi*float64(2*x+1)*float64(k)/float64(2*n))
		}
	}
	return basis
}
