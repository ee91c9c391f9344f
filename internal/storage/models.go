package storage

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// EventRecord is one delivered posture event.
type EventRecord struct {
	ID              int64
	EventID         string
	SessionID       string
	Subject         string
	Type            string
	DurationMinutes int
	SittingMinutes  int
	LyingMinutes    int
	Payload         json.RawMessage
	OccurredAt      time.Time
	CreatedAt       time.Time
}

// ClassificationRecord logs one classified window together with the static
// ratio observed right after it was applied.
type ClassificationRecord struct {
	At              time.Time
	SessionID       string
	Subject         string
	Label           string
	Confidence      decimal.Decimal
	StaticRatio     decimal.Decimal
	MissingFeatures int
	CreatedAt       time.Time
}
