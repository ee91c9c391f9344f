// Package dsp holds the signal conditioning applied to optical windows before
// feature extraction.
package dsp

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrInsufficientSamples is returned when the input is too short to pad.
var ErrInsufficientSamples = errors.New("dsp: insufficient samples for zero-phase filtering")

// Second-order Butterworth band-pass, 0.5-5 Hz at 25 Hz.
var (
	bandpassB = []float64{0.17508764, 0, -0.35017529, 0, 0.17508764}
	bandpassA = []float64{1, -2.29905536, 1.96749776, -0.87480556, 0.21965398}
)

// Filter is an IIR filter applied forward and backward for zero phase shift.
// It holds no per-call state and is safe for concurrent use.
type Filter struct {
	b, a   []float64
	zi     []float64
	padLen int
}

// NewBandpass returns the fixed 0.5-5 Hz band-pass used on the optical channel.
func NewBandpass() *Filter {
	f, err := NewFilter(bandpassB, bandpassA)
	if err != nil {
		panic(err)
	}
	return f
}

// NewFilter builds a filter from transfer function coefficients. a[0] must be
// non-zero; both vectors are normalised by it.
func NewFilter(b, a []float64) (*Filter, error) {
	if len(a) == 0 || len(b) == 0 {
		return nil, errors.New("dsp: empty coefficients")
	}
	if a[0] == 0 {
		return nil, errors.New("dsp: leading denominator coefficient is zero")
	}
	n := max(len(a), len(b))
	nb := make([]float64, n)
	na := make([]float64, n)
	for i, v := range b {
		nb[i] = v / a[0]
	}
	for i, v := range a {
		na[i] = v / a[0]
	}

	zi, err := steadyState(nb, na)
	if err != nil {
		return nil, err
	}
	return &Filter{b: nb, a: na, zi: zi, padLen: 3 * max(len(a), len(b))}, nil
}

// PadLen is the number of reflected samples added on each side.
func (f *Filter) PadLen() int { return f.padLen }

// Filtfilt runs the filter forward, then backward over the reversed output,
// after odd reflection padding of both ends. Output length equals input length.
func (f *Filter) Filtfilt(x []float64) ([]float64, error) {
	if len(x) <= f.padLen {
		return nil, fmt.Errorf("%w: got %d, need more than %d", ErrInsufficientSamples, len(x), f.padLen)
	}

	ext := oddExtend(x, f.padLen)

	y := f.run(ext, ext[0])
	reverse(y)
	y = f.run(y, y[0])
	reverse(y)

	out := make([]float64, len(x))
	copy(out, y[f.padLen:f.padLen+len(x)])
	return out, nil
}

// run applies the transposed direct form II recursion with the state primed
// to the steady-state response for a constant input of value x0.
func (f *Filter) run(x []float64, x0 float64) []float64 {
	order := len(f.a) - 1
	z := make([]float64, order)
	for i := range z {
		z[i] = f.zi[i] * x0
	}

	y := make([]float64, len(x))
	for n, xn := range x {
		yn := f.b[0]*xn + z[0]
		for i := 0; i < order-1; i++ {
			z[i] = f.b[i+1]*xn + z[i+1] - f.a[i+1]*yn
		}
		z[order-1] = f.b[order]*xn - f.a[order]*yn
		y[n] = yn
	}
	return y
}

// steadyState solves (I - A^T) zi = b[1:] - a[1:]*b[0], where A is the
// companion matrix of a.
func steadyState(b, a []float64) ([]float64, error) {
	k := len(a) - 1
	if k == 0 {
		return nil, nil
	}
	m := mat.NewDense(k, k, nil)
	for i := 0; i < k; i++ {
		m.Set(i, i, 1)
		m.Set(i, 0, m.At(i, 0)+a[i+1])
		if i+1 < k {
			m.Set(i, i+1, -1)
		}
	}
	rhs := mat.NewVecDense(k, nil)
	for i := 0; i < k; i++ {
		rhs.SetVec(i, b[i+1]-a[i+1]*b[0])
	}

	var zi mat.VecDense
	if err := zi.SolveVec(m, rhs); err != nil {
		return nil, fmt.Errorf("dsp: solve initial conditions: %w", err)
	}
	return zi.RawVector().Data, nil
}

// oddExtend reflects pad samples about each end point: 2*x[0]-x[pad..1] on
// the left and 2*x[n-1]-x[n-2..n-pad-1] on the right.
func oddExtend(x []float64, pad int) []float64 {
	n := len(x)
	out := make([]float64, 0, n+2*pad)
	for i := pad; i >= 1; i-- {
		out = append(out, 2*x[0]-x[i])
	}
	out = append(out, x...)
	for i := n - 2; i >= n-pad-1; i-- {
		out = append(out, 2*x[n-1]-x[i])
	}
	return out
}

func reverse(x []float64) {
	for i, j := 0, len(x)-1; i < j; i, j = i+1, j-1 {
		x[i], x[j] = x[j], x[i]
	}
}
