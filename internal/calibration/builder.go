package calibration

import (
	"encoding/json"
	"errors"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"posturewatch/internal/features"
)

// ErrNoWindows is returned when a capture produced no usable feature windows.
var ErrNoWindows = errors.New("calibration: no feature windows captured")

// Builder aggregates a calibration capture into a Document.
type Builder struct {
	subject string
	windows [features.Count][]float64
	count   int
	raw     []float64
}

// NewBuilder starts a capture for subject.
func NewBuilder(subject string) *Builder {
	return &Builder{subject: subject}
}

// AddWindow records one feature vector. NaN entries are skipped per feature.
func (b *Builder) AddWindow(v features.Vector) {
	for i, f := range v {
		if !math.IsNaN(f) {
			b.windows[i] = append(b.windows[i], f)
		}
	}
	b.count++
}

// AddRaw records raw optical samples for the normalisation statistics.
func (b *Builder) AddRaw(samples ...float64) {
	b.raw = append(b.raw, samples...)
}

// Windows reports how many feature vectors were added.
func (b *Builder) Windows() int { return b.count }

// Document computes per-feature means, mean±3σ clip bounds and raw channel
// statistics.
func (b *Builder) Document(now time.Time) (Document, error) {
	if b.count == 0 {
		return Document{}, ErrNoWindows
	}
	doc := Document{
		SubjectID:  b.subject,
		CalibMeans: make(map[string]float64, features.Count),
		ClipBounds: make(map[string][2]float64, features.Count),
		Windows:    b.count,
		CreatedAt:  now.UTC(),
	}
	for i, name := range features.Names {
		vals := b.windows[i]
		if len(vals) == 0 {
			continue
		}
		mu, sd := stat.PopMeanStdDev(vals, nil)
		doc.CalibMeans[name] = mu
		if sd > 0 {
			doc.ClipBounds[name] = [2]float64{mu - 3*sd, mu + 3*sd}
		}
	}
	if len(b.raw) > 1 {
		mu, sd := stat.PopMeanStdDev(b.raw, nil)
		doc.StatsRaw = map[string]RawStats{RawChannel: {Mu: mu, Sigma: sd}}
	}
	return doc, nil
}

// Marshal renders the document as indented JSON.
func (d Document) Marshal() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}
