// Package source feeds sensor readings into the pipeline.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"posturewatch/internal/window"
)

// Kind names the sensor a reading came from.
type Kind string

const (
	// KindAccel carries linear acceleration with gravity removed.
	KindAccel Kind = "acc"
	KindGyro  Kind = "gyro"
	KindPPG   Kind = "ppg"
)

// Reading is one decoded sample. Triaxial kinds use X, Y, Z; the optical
// channel uses V.
type Reading struct {
	T       time.Time
	Kind    Kind
	X, Y, Z float64
	V       float64
}

// Sample returns the triaxial part of r.
func (r Reading) Sample() window.Sample {
	return window.Sample{T: r.T, X: r.X, Y: r.Y, Z: r.Z}
}

// Handler receives readings in arrival order.
type Handler func(Reading)

// SampleSource delivers readings until ctx is done or the source is exhausted.
type SampleSource interface {
	Run(ctx context.Context, handle Handler) error
}

type wireReading struct {
	T    int64    `json:"t"`
	Kind Kind     `json:"kind"`
	X    *float64 `json:"x"`
	Y    *float64 `json:"y"`
	Z    *float64 `json:"z"`
	V    *float64 `json:"v"`
}

// ParseJSON decodes one wire payload.
func ParseJSON(payload []byte) (Reading, error) {
	var w wireReading
	if err := json.Unmarshal(payload, &w); err != nil {
		return Reading{}, fmt.Errorf("decode reading: %w", err)
	}
	r := Reading{T: time.UnixMilli(w.T).UTC(), Kind: w.Kind}
	switch w.Kind {
	case KindAccel, KindGyro:
		if w.X == nil || w.Y == nil || w.Z == nil {
			return Reading{}, fmt.Errorf("reading %s: x, y and z are required", w.Kind)
		}
		r.X, r.Y, r.Z = *w.X, *w.Y, *w.Z
	case KindPPG:
		switch {
		case w.V != nil:
			r.V = *w.V
		case w.X != nil:
			r.V = *w.X
		default:
			return Reading{}, fmt.Errorf("reading ppg: v is required")
		}
	default:
		return Reading{}, fmt.Errorf("unknown reading kind %q", w.Kind)
	}
	return r, nil
}
