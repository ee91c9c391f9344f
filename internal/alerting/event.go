package alerting

import (
	"encoding/json"
	"time"
)

// EventType names an outbound posture event.
type EventType string

// Event types understood by the handheld companion.
const (
	SittingLong   EventType = "SITTING_LONG"
	LyingLong     EventType = "LYING_LONG"
	StretchReward EventType = "STRETCH_REWARD"
	StandupReward EventType = "STANDUP_REWARD"
	StaticAccum   EventType = "STATIC_ACCUM_TIME"
)

// IsWarning reports whether t is a prolonged-posture warning.
func (t EventType) IsWarning() bool { return t == SittingLong || t == LyingLong }

// IsReward reports whether t is a posture-break reward.
func (t EventType) IsReward() bool { return t == StretchReward || t == StandupReward }

// Event is emitted by the dwell monitor and delivered at most once.
type Event struct {
	ID      string
	Session string
	Type    EventType
	At      time.Time
	Subject string
	// DurationMinutes is set on warnings.
	DurationMinutes int
	// Elapsed is the dwell time accumulated when a warning fired.
	Elapsed time.Duration
	// SittingMinutes and LyingMinutes are set on accumulation reports.
	SittingMinutes int
	LyingMinutes   int
}

type warnPayload struct {
	Type     EventType `json:"type"`
	Duration int       `json:"duration"`
}

type rewardPayload struct {
	Type EventType `json:"type"`
}

type accumPayload struct {
	Lying   *int `json:"lying,omitempty"`
	Sitting *int `json:"sitting,omitempty"`
}

// Payload renders the wire message for the companion device.
func (e Event) Payload() ([]byte, error) {
	switch {
	case e.Type.IsWarning():
		return json.Marshal(warnPayload{Type: e.Type, Duration: e.DurationMinutes})
	case e.Type == StaticAccum:
		var p accumPayload
		if e.LyingMinutes > 0 {
			v := e.LyingMinutes
			p.Lying = &v
		}
		if e.SittingMinutes > 0 {
			v := e.SittingMinutes
			p.Sitting = &v
		}
		return json.Marshal(p)
	default:
		return json.Marshal(rewardPayload{Type: e.Type})
	}
}
