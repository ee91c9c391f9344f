// Package window turns the raw sample stream into fixed-size, half-overlapping
// windows and keeps the sliding optical buffer used for feature extraction.
package window

import "time"

// Sample is one triaxial reading in SI units.
type Sample struct {
	T       time.Time
	X, Y, Z float64
}

// Windower accumulates samples and emits a flattened copy of every N samples,
// advancing by N/2 after each emission.
type Windower struct {
	size   int
	stride int
	buf    []Sample
}

// NewWindower returns a windower of n samples (n >= 2).
func NewWindower(n int) *Windower {
	if n < 2 {
		panic("window size must be at least 2")
	}
	return &Windower{size: n, stride: n / 2, buf: make([]Sample, 0, n)}
}

// Size reports the configured window length in samples.
func (w *Windower) Size() int { return w.size }

// Add appends s. When the buffer holds exactly N samples it returns the window
// as x0,y0,z0,x1,... and drops the oldest N/2 samples.
func (w *Windower) Add(s Sample) ([]float64, bool) {
	w.buf = append(w.buf, s)
	if len(w.buf) < w.size {
		return nil, false
	}
	if len(w.buf) > w.size {
		w.buf = w.buf[len(w.buf)-w.size:]
	}

	out := make([]float64, 0, 3*w.size)
	for _, v := range w.buf {
		out = append(out, v.X, v.Y, v.Z)
	}

	n := copy(w.buf, w.buf[w.stride:])
	w.buf = w.buf[:n]
	return out, true
}

// Buffered reports how many samples are waiting for the next window.
func (w *Windower) Buffered() int { return len(w.buf) }

// Reset discards any partial window.
func (w *Windower) Reset() { w.buf = w.buf[:0] }
