// Package calibration maps subject-specific feature levels onto the
// distribution the classifier was trained on.
package calibration

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"posturewatch/internal/features"
)

// Document is the persisted calibration record of one subject.
type Document struct {
	SubjectID  string                `json:"subject_id"`
	CalibMeans map[string]float64    `json:"calib_means"`
	ClipBounds map[string][2]float64 `json:"clip_bounds,omitempty"`
	StatsRaw   map[string]RawStats   `json:"stats_raw,omitempty"`
	Windows    int                   `json:"windows,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
}

// RawStats are the mean and standard deviation of one raw sensor channel.
type RawStats struct {
	Mu    float64 `json:"mu"`
	Sigma float64 `json:"sigma"`
}

// RawChannel is the optical channel whose statistics normalise windows.
const RawChannel = "green"

// Profile is an immutable, loaded calibration. The zero value is not usable;
// use Identity for a no-op profile.
type Profile struct {
	subject  string
	means    features.Vector
	clip     [features.Count][2]float64
	raw      RawStats
	hasRaw   bool
	identity bool
}

// Identity returns a profile that leaves every feature unchanged.
func Identity(subject string) Profile {
	p := Profile{subject: subject, identity: true}
	for i := range p.clip {
		p.clip[i] = [2]float64{math.Inf(-1), math.Inf(1)}
	}
	return p
}

// Parse decodes a calibration document. Unknown feature names are ignored.
func Parse(data []byte) (Profile, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Profile{}, fmt.Errorf("decode calibration: %w", err)
	}
	if len(doc.CalibMeans) == 0 {
		return Profile{}, fmt.Errorf("decode calibration: calib_means is empty")
	}
	return FromDocument(doc), nil
}

// FromDocument builds a profile from an in-memory document.
func FromDocument(doc Document) Profile {
	p := Identity(doc.SubjectID)
	p.identity = false
	for i, name := range features.Names {
		p.means[i] = doc.CalibMeans[name]
		if b, ok := doc.ClipBounds[name]; ok && b[0] <= b[1] {
			p.clip[i] = b
		}
	}
	if rs, ok := doc.StatsRaw[RawChannel]; ok {
		p.raw = rs
		p.hasRaw = true
	}
	return p
}

// Subject returns the subject the profile belongs to.
func (p Profile) Subject() string { return p.subject }

// IsIdentity reports whether the profile is the no-op fallback.
func (p Profile) IsIdentity() bool { return p.identity }

// RawStats returns the optical channel statistics, if the document had them.
func (p Profile) RawStats() (RawStats, bool) { return p.raw, p.hasRaw }

// ScaleFactor is global/subject when both are strictly positive, else 1.
func ScaleFactor(global, subject float64) float64 {
	if global > 0 && subject > 0 {
		return global / subject
	}
	return 1
}

// ScaleVector returns the per-feature multipliers against the training means.
func (p Profile) ScaleVector(global features.Vector) features.Vector {
	var out features.Vector
	for i := range out {
		if p.identity {
			out[i] = 1
			continue
		}
		out[i] = ScaleFactor(global[i], p.means[i])
	}
	return out
}

// Apply clips v to the subject bounds and multiplies it by the scale vector.
// NaN entries stay NaN.
func (p Profile) Apply(v, global features.Vector) features.Vector {
	scale := p.ScaleVector(global)
	var out features.Vector
	for i, f := range v {
		if !math.IsNaN(f) {
			f = math.Min(math.Max(f, p.clip[i][0]), p.clip[i][1])
		}
		out[i] = f * scale[i]
	}
	return out
}
