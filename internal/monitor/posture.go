// Package monitor tracks dwell time in static postures and decides when to
// warn the wearer and when a posture break earns a reward.
package monitor

// Posture is the smoothed posture fed to the monitor on every tick.
type Posture int

// Postures. Unknown freezes the monitor for that tick.
const (
	Unknown Posture = iota
	Sitting
	Lying
	Standing
	Moving
)

func (p Posture) String() string {
	switch p {
	case Sitting:
		return "sitting"
	case Lying:
		return "lying"
	case Standing:
		return "standing"
	case Moving:
		return "moving"
	default:
		return "unknown"
	}
}

// IsStatic reports whether p accumulates dwell time.
func (p Posture) IsStatic() bool { return p == Sitting || p == Lying }

// Kind is the static posture a warning and its reward refer to.
type Kind int

// Kinds.
const (
	KindSitting Kind = iota + 1
	KindLying
)

func (k Kind) String() string {
	switch k {
	case KindSitting:
		return "sitting"
	case KindLying:
		return "lying"
	default:
		return "none"
	}
}

func kindOf(p Posture) Kind {
	switch p {
	case Sitting:
		return KindSitting
	case Lying:
		return KindLying
	default:
		return 0
	}
}
