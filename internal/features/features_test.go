package features

import (
	"math"
	"testing"
	"time"
)

func near(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestExtractSineAtOneHertz(t *testing.T) {
	x := make([]float64, 250)
	for i := range x {
		x[i] = math.Sin(2 * math.Pi * float64(i) / 25)
	}
	e := NewExtractor(25, 400*time.Millisecond)
	if e.MinDistance() != 10 {
		t.Fatalf("min distance = %d, want 10", e.MinDistance())
	}

	v := e.Extract(x)
	if v[NPeaks] != 10 {
		t.Fatalf("n_peaks = %v, want 10", v[NPeaks])
	}
	if !near(v[RRMean], 1.0, 1e-9) {
		t.Fatalf("rr_mean = %v, want 1", v[RRMean])
	}
	if !near(v[HRMean], 60, 1e-6) {
		t.Fatalf("hr_mean = %v, want 60", v[HRMean])
	}
	if v[PNN50] != 0 || !near(v[RMSSD], 0, 1e-9) {
		t.Fatalf("pnn50 = %v rmssd = %v, want 0", v[PNN50], v[RMSSD])
	}
	if !near(v[CrestTime], 0.48, 1e-9) || !near(v[DwellTime], 1.0, 1e-9) {
		t.Fatalf("crest = %v dwell = %v", v[CrestTime], v[DwellTime])
	}
	if !near(v[PWTF], 0.48, 1e-9) {
		t.Fatalf("pwtf = %v", v[PWTF])
	}
	if !near(v[Kurtosis], -1.5, 1e-6) || !near(v[Skew], 0, 1e-6) {
		t.Fatalf("kurtosis = %v skew = %v", v[Kurtosis], v[Skew])
	}
	if v.Missing() != 0 {
		t.Fatalf("unexpected NaN entries: %v", v)
	}
}

func TestExtractFlatSignalUsesNaN(t *testing.T) {
	v := NewExtractor(25, 400*time.Millisecond).Extract(make([]float64, 250))
	if v[NPeaks] != 0 {
		t.Fatalf("n_peaks = %v, want 0", v[NPeaks])
	}
	for _, idx := range []int{PNN50, RRMean, HRMean, RMSSD, CrestTime, DwellTime, PWTF} {
		if !math.IsNaN(v[idx]) {
			t.Fatalf("%s = %v, want NaN", Names[idx], v[idx])
		}
	}
	if v[Kurtosis] != 0 || v[Skew] != 0 {
		t.Fatalf("moments on flat input = %v, %v", v[Kurtosis], v[Skew])
	}
}

func TestExtractTwoPeaksHasRRButNoVariability(t *testing.T) {
	x := make([]float64, 40)
	x[5] = 1
	x[30] = 1
	v := NewExtractor(25, 400*time.Millisecond).Extract(x)
	if v[NPeaks] != 2 {
		t.Fatalf("n_peaks = %v", v[NPeaks])
	}
	if !near(v[RRMean], 1.0, 1e-9) {
		t.Fatalf("rr_mean = %v", v[RRMean])
	}
	if !math.IsNaN(v[RMSSD]) || !math.IsNaN(v[PNN50]) {
		t.Fatalf("rmssd/pnn50 need three peaks: %v %v", v[RMSSD], v[PNN50])
	}
}

func TestRefractoryKeepsFirstPeak(t *testing.T) {
	x := make([]float64, 30)
	x[5] = 1
	x[9] = 2
	x[20] = 1
	e := NewExtractor(25, 400*time.Millisecond)
	peaks, _ := e.extrema(x)
	if len(peaks) != 2 || peaks[0] != 5 || peaks[1] != 20 {
		t.Fatalf("peaks = %v, want [5 20]", peaks)
	}
}
