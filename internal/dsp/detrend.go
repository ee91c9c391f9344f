package dsp

import (
	"gonum.org/v1/gonum/stat"
)

// Detrend removes the least-squares line from x and returns a new slice.
func Detrend(x []float64) []float64 {
	out := make([]float64, len(x))
	if len(x) < 2 {
		return out
	}
	idx := make([]float64, len(x))
	for i := range idx {
		idx[i] = float64(i)
	}
	alpha, beta := stat.LinearRegression(idx, x, nil, false)
	for i, v := range x {
		out[i] = v - (alpha + beta*idx[i])
	}
	return out
}

// Normalize z-scores x in place against a reference mean and standard
// deviation. A non-positive sd only removes the mean.
func Normalize(x []float64, mean, sd float64) {
	for i := range x {
		x[i] -= mean
		if sd > 0 {
			x[i] /= sd
		}
	}
}
