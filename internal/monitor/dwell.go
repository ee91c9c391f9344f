package monitor

import (
	"time"

	"posturewatch/internal/alerting"
)

// Phase is the monitor state tag.
type Phase int

// Phases.
const (
	Idle Phase = iota
	Accumulating
	PendingReward
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Accumulating:
		return "accumulating"
	case PendingReward:
		return "pending_reward"
	default:
		return "invalid"
	}
}

// State is the tagged monitor state. Kind is set only in PendingReward.
type State struct {
	Phase Phase
	Kind  Kind
}

// Policy derives the effective dwell threshold from the configured minutes.
type Policy struct {
	Minutes int
	// Margin fires slightly early, e.g. 0.95.
	Margin float64
	// Floor is used when Minutes <= FloorMinutes.
	Floor        time.Duration
	FloorMinutes int
}

// DefaultPolicy returns the stock policy for minutes.
func DefaultPolicy(minutes int) Policy {
	return Policy{Minutes: minutes, Margin: 0.95, Floor: 10 * time.Second, FloorMinutes: 1}
}

// Threshold is minutes*60s*margin, or the floor for very short settings.
func (p Policy) Threshold() time.Duration {
	if p.Minutes <= p.FloorMinutes {
		return p.Floor
	}
	ms := float64(p.Minutes) * 60000 * p.Margin
	return time.Duration(ms) * time.Millisecond
}

// ReportedMinutes is the duration carried by warning events.
func (p Policy) ReportedMinutes() int {
	return max(p.Minutes, 1)
}

// Dwell is the warning/reward state machine. It must be driven from a single
// goroutine.
type Dwell struct {
	policy    Policy
	threshold time.Duration
	subject   string

	state       State
	accumulated time.Duration
	last        time.Time
}

// NewDwell builds a monitor in the Idle state.
func NewDwell(policy Policy, subject string) *Dwell {
	return &Dwell{policy: policy, threshold: policy.Threshold(), subject: subject}
}

// Threshold returns the effective dwell threshold.
func (d *Dwell) Threshold() time.Duration { return d.threshold }

// State returns the current state.
func (d *Dwell) State() State { return d.state }

// Accumulated returns the dwell time counted so far.
func (d *Dwell) Accumulated() time.Duration { return d.accumulated }

// Tick advances the machine with the posture observed at t. Gaps between
// ticks count fully toward dwell time. An Unknown posture leaves the state
// and the last tick time untouched.
func (d *Dwell) Tick(t time.Time, posture Posture) []alerting.Event {
	if posture == Unknown {
		return nil
	}
	elapsed := time.Duration(0)
	if !d.last.IsZero() && t.After(d.last) {
		elapsed = t.Sub(d.last)
	}
	d.last = t

	if posture.IsStatic() {
		return d.onStatic(t, posture, elapsed)
	}
	return d.onActive(t)
}

func (d *Dwell) onStatic(t time.Time, posture Posture, elapsed time.Duration) []alerting.Event {
	if d.state.Phase == PendingReward {
		return nil
	}
	d.accumulated += elapsed
	d.state = State{Phase: Accumulating}
	if d.accumulated < d.threshold {
		return nil
	}

	kind := kindOf(posture)
	d.state = State{Phase: PendingReward, Kind: kind}
	evType := alerting.SittingLong
	if kind == KindLying {
		evType = alerting.LyingLong
	}
	return []alerting.Event{{
		Type:            evType,
		At:              t,
		Subject:         d.subject,
		DurationMinutes: d.policy.ReportedMinutes(),
		Elapsed:         d.accumulated,
	}}
}

func (d *Dwell) onActive(t time.Time) []alerting.Event {
	pending := d.state
	d.accumulated = 0
	d.state = State{Phase: Idle}
	if pending.Phase != PendingReward {
		return nil
	}
	evType := alerting.StretchReward
	if pending.Kind == KindLying {
		evType = alerting.StandupReward
	}
	return []alerting.Event{{Type: evType, At: t, Subject: d.subject}}
}

// Reset returns to Idle and forgets the last tick time.
func (d *Dwell) Reset() {
	d.state = State{Phase: Idle}
	d.accumulated = 0
	d.last = time.Time{}
}
