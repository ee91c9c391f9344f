package monitor

import (
	"time"

	"posturewatch/internal/alerting"
)

// AccumReporter totals time spent sitting and lying and reports it in whole
// minutes; the sub-minute remainder carries over to the next report.
type AccumReporter struct {
	subject string
	last    time.Time
	sitting time.Duration
	lying   time.Duration
}

// NewAccumReporter returns an empty reporter.
func NewAccumReporter(subject string) *AccumReporter {
	return &AccumReporter{subject: subject}
}

// Tick adds the time since the previous tick to posture's total and returns
// a report once at least one whole minute is available.
func (a *AccumReporter) Tick(t time.Time, posture Posture) []alerting.Event {
	var dt time.Duration
	if !a.last.IsZero() && t.After(a.last) {
		dt = t.Sub(a.last)
	}
	a.last = t

	switch posture {
	case Sitting:
		a.sitting += dt
	case Lying:
		a.lying += dt
	}

	sitMin := int(a.sitting / time.Minute)
	lieMin := int(a.lying / time.Minute)
	if sitMin == 0 && lieMin == 0 {
		return nil
	}
	a.sitting -= time.Duration(sitMin) * time.Minute
	a.lying -= time.Duration(lieMin) * time.Minute
	return []alerting.Event{{
		Type:           alerting.StaticAccum,
		At:             t,
		Subject:        a.subject,
		SittingMinutes: sitMin,
		LyingMinutes:   lieMin,
	}}
}

// Pending returns the unreported remainder per posture.
func (a *AccumReporter) Pending() (sitting, lying time.Duration) {
	return a.sitting, a.lying
}

// Reset drops all totals.
func (a *AccumReporter) Reset() {
	*a = AccumReporter{subject: a.subject}
}
