package window

// PhysioBuffer keeps the most recent n scalar samples of the optical channel.
type PhysioBuffer struct {
	size int
	buf  []float64
}

// NewPhysioBuffer returns an empty buffer holding at most n samples.
func NewPhysioBuffer(n int) *PhysioBuffer {
	if n <= 0 {
		panic("physio buffer size must be positive")
	}
	return &PhysioBuffer{size: n, buf: make([]float64, 0, n)}
}

// Push appends v, evicting the oldest sample once the buffer is full.
func (p *PhysioBuffer) Push(v float64) {
	if len(p.buf) == p.size {
		copy(p.buf, p.buf[1:])
		p.buf = p.buf[:p.size-1]
	}
	p.buf = append(p.buf, v)
}

// Full reports whether a complete window is available.
func (p *PhysioBuffer) Full() bool { return len(p.buf) == p.size }

// Snapshot returns a copy of the buffered samples, oldest first.
func (p *PhysioBuffer) Snapshot() []float64 {
	out := make([]float64, len(p.buf))
	copy(out, p.buf)
	return out
}

// Reset drops all samples.
func (p *PhysioBuffer) Reset() { p.buf = p.buf[:0] }
