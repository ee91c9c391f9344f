package pipeline

import (
	"gonum.org/v1/gonum/stat"

	"posturewatch/internal/calibration"
	"posturewatch/internal/dsp"
	"posturewatch/internal/features"
)

// Featurizer turns one optical window into a feature vector: optional
// detrend and z-score, zero-phase band-pass, then peak features.
type Featurizer struct {
	filter    *dsp.Filter
	extractor features.Extractor
	detrend   bool
	normalize bool
}

// NewFeaturizer builds the stage from settings.
func NewFeaturizer(settings Settings) *Featurizer {
	return &Featurizer{
		filter:    dsp.NewBandpass(),
		extractor: features.NewExtractor(settings.SampleRate, settings.MinPeakDistance),
		detrend:   settings.Detrend,
		normalize: settings.Normalize,
	}
}

// MinSamples is the shortest window the filter accepts.
func (f *Featurizer) MinSamples() int { return f.filter.PadLen() + 1 }

// Features processes x without modifying it. When raw carries a positive
// sigma it is used for normalisation, otherwise the window's own statistics.
func (f *Featurizer) Features(x []float64, raw calibration.RawStats) (features.Vector, error) {
	work := make([]float64, len(x))
	copy(work, x)
	if f.detrend {
		work = dsp.Detrend(work)
	}
	if f.normalize {
		mean, sd := raw.Mu, raw.Sigma
		if sd <= 0 {
			mean, sd = stat.PopMeanStdDev(work, nil)
		}
		dsp.Normalize(work, mean, sd)
	}
	filtered, err := f.filter.Filtfilt(work)
	if err != nil {
		return features.Vector{}, err
	}
	return f.extractor.Extract(filtered), nil
}
