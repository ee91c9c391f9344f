// Package tracker smooths per-window static predictions over a time span.
package tracker

import "time"

// DefaultCoverage is the share of the span that must be buffered before the
// ratio is reported.
const DefaultCoverage = 0.92

// Clock returns the current time.
type Clock func() time.Time

type entry struct {
	at       time.Time
	isStatic bool
}

// StaticRatio keeps (timestamp, isStatic) entries no older than span and
// reports the share of static entries once enough history is buffered.
// It is not safe for concurrent use.
type StaticRatio struct {
	span     time.Duration
	coverage float64
	now      Clock
	entries  []entry
	static   int
}

// New builds a tracker. A nil clock uses time.Now; coverage outside (0,1]
// falls back to DefaultCoverage.
func New(span time.Duration, coverage float64, clock Clock) *StaticRatio {
	if span <= 0 {
		panic("tracker span must be positive")
	}
	if coverage <= 0 || coverage > 1 {
		coverage = DefaultCoverage
	}
	if clock == nil {
		clock = time.Now
	}
	return &StaticRatio{span: span, coverage: coverage, now: clock}
}

// Update records isStatic at the clock's current time.
func (s *StaticRatio) Update(isStatic bool) {
	s.UpdateAt(s.now(), isStatic)
}

// UpdateAt records isStatic at t and evicts entries older than the span.
func (s *StaticRatio) UpdateAt(t time.Time, isStatic bool) {
	s.entries = append(s.entries, entry{at: t, isStatic: isStatic})
	if isStatic {
		s.static++
	}
	s.evict(t)
}

func (s *StaticRatio) evict(now time.Time) {
	cutoff := now.Add(-s.span)
	drop := 0
	for drop < len(s.entries) && s.entries[drop].at.Before(cutoff) {
		if s.entries[drop].isStatic {
			s.static--
		}
		drop++
	}
	if drop > 0 {
		s.entries = append(s.entries[:0], s.entries[drop:]...)
	}
}

// Ready reports whether the buffered history covers enough of the span,
// measured from the oldest entry to the clock's current time. Entries that
// aged out since the last update are evicted first, so a tracker that stops
// receiving updates falls back to not ready.
func (s *StaticRatio) Ready() bool {
	now := s.now()
	s.evict(now)
	return s.readyAt(now)
}

func (s *StaticRatio) readyAt(now time.Time) bool {
	if len(s.entries) == 0 {
		return false
	}
	covered := now.Sub(s.entries[0].at)
	return float64(covered) >= s.coverage*float64(s.span)
}

// Ratio is static/total over the entries inside the span once Ready,
// otherwise 0.
func (s *StaticRatio) Ratio() float64 {
	if !s.Ready() {
		return 0
	}
	return float64(s.static) / float64(len(s.entries))
}

// Len reports the number of buffered entries.
func (s *StaticRatio) Len() int { return len(s.entries) }

// Reset clears all history.
func (s *StaticRatio) Reset() {
	s.entries = s.entries[:0]
	s.static = 0
}
