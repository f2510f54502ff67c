package utils

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Square returns n*n.
func Square(n float64) float64 {
	return n * n
}

// IsFinite reports whether x is neither NaN nor an infinity.
func IsFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// AllFinite reports whether every value is finite.
func AllFinite(values []float64) bool {
	for _, v := range values {
		if !IsFinite(v) {
			return false
		}
	}
	return true
}

// MatrixFinite reports whether every entry of m is finite.
func MatrixFinite(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if !IsFinite(m.At(i, j)) {
				return false
			}
		}
	}
	return true
}

// InfNorm returns the largest absolute value, 0 for an empty slice.
func InfNorm(values []float64) float64 {
	var m float64
	for _, v := range values {
		if a := math.Abs(v); a > m || math.IsNaN(a) {
			m = a
		}
	}
	return m
}
