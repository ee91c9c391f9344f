// Package features computes the pulse-wave feature vector fed to the
// posture classifier.
package features

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Count is the length of a feature vector.
const Count = 10

// Indices into Vector. The order matches the training pipeline.
const (
	PNN50 = iota
	RRMean
	HRMean
	RMSSD
	NPeaks
	CrestTime
	DwellTime
	PWTF
	Kurtosis
	Skew
)

// Names lists the feature names in vector order.
var Names = [Count]string{
	"pnn50", "rr_mean", "hr_mean", "rmssd", "n_peaks",
	"crest_t", "dwell_t", "pwtf", "kurtosis", "skew",
}

// Vector is one window of features. Interval-derived entries are NaN when the
// window holds too few beats to compute them.
type Vector [Count]float64

// Slice returns the vector as a fresh slice.
func (v Vector) Slice() []float64 {
	out := make([]float64, Count)
	copy(out, v[:])
	return out
}

// Map keys the vector by feature name.
func (v Vector) Map() map[string]float64 {
	out := make(map[string]float64, Count)
	for i, name := range Names {
		out[name] = v[i]
	}
	return out
}

// Missing reports how many entries are NaN.
func (v Vector) Missing() int {
	n := 0
	for _, f := range v {
		if math.IsNaN(f) {
			n++
		}
	}
	return n
}

const varianceFloor = 1e-6

// Extractor finds beats in a filtered optical window.
type Extractor struct {
	fs      float64
	minDist int
}

// NewExtractor returns an extractor for sample rate fs that suppresses
// peaks closer than minDistance to the previously accepted one.
func NewExtractor(fs float64, minDistance time.Duration) Extractor {
	return Extractor{fs: fs, minDist: int(fs * minDistance.Seconds())}
}

// MinDistance is the refractory distance in samples.
func (e Extractor) MinDistance() int { return e.minDist }

// Extract computes the feature vector for x. It never fails.
func (e Extractor) Extract(x []float64) Vector {
	var v Vector
	for i := range v {
		v[i] = math.NaN()
	}

	peaks, troughs := e.extrema(x)
	v[NPeaks] = float64(len(peaks))

	rr := make([]float64, 0, len(peaks))
	for i := 1; i < len(peaks); i++ {
		rr = append(rr, float64(peaks[i]-peaks[i-1])/e.fs)
	}
	if len(rr) > 0 {
		v[RRMean] = stat.Mean(rr, nil)
		if v[RRMean] > 0 {
			v[HRMean] = 60 / v[RRMean]
		}
	}
	if len(rr) > 1 {
		var sq float64
		over := 0
		for i := 1; i < len(rr); i++ {
			d := rr[i] - rr[i-1]
			sq += d * d
			if math.Abs(d) > 0.05 {
				over++
			}
		}
		n := float64(len(rr) - 1)
		v[RMSSD] = math.Sqrt(sq / n)
		v[PNN50] = float64(over) / n
	}

	crest, dwell := e.cycles(peaks, troughs)
	if len(crest) > 0 {
		v[CrestTime] = stat.Mean(crest, nil)
		v[DwellTime] = stat.Mean(dwell, nil)
		if v[DwellTime] != 0 {
			v[PWTF] = v[CrestTime] / v[DwellTime]
		}
	}

	v[Kurtosis], v[Skew] = 0, 0
	if len(x) > 0 {
		m2 := stat.Moment(2, x, nil)
		if m2 > varianceFloor {
			v[Kurtosis] = stat.Moment(4, x, nil)/(m2*m2) - 3
			v[Skew] = stat.Moment(3, x, nil) / math.Pow(m2, 1.5)
		}
	}
	return v
}

// extrema returns strict local maxima and minima, each thinned left to right
// so that kept indices are at least minDist apart.
func (e Extractor) extrema(x []float64) (peaks, troughs []int) {
	lastP, lastT := -e.minDist, -e.minDist
	for i := 1; i < len(x)-1; i++ {
		if x[i] > x[i-1] && x[i] > x[i+1] && i-lastP >= e.minDist {
			peaks = append(peaks, i)
			lastP = i
		}
		if x[i] < x[i-1] && x[i] < x[i+1] && i-lastT >= e.minDist {
			troughs = append(troughs, i)
			lastT = i
		}
	}
	return peaks, troughs
}

// cycles pairs every peak with its surrounding troughs and returns the
// rise time and full cycle length in seconds.
func (e Extractor) cycles(peaks, troughs []int) (crest, dwell []float64) {
	j := 0
	for _, p := range peaks {
		for j < len(troughs) && troughs[j] < p {
			j++
		}
		if j == 0 || j == len(troughs) {
			continue
		}
		prev, next := troughs[j-1], troughs[j]
		crest = append(crest, float64(p-prev)/e.fs)
		dwell = append(dwell, float64(next-prev)/e.fs)
	}
	return crest, dwell
}
