package motion

import "testing"

func constWindow(n int, x, y, z float64) []float64 {
	out := make([]float64, 0, 3*n)
	for i := 0; i < n; i++ {
		out = append(out, x, y, z)
	}
	return out
}

func TestShouldSkipZeros(t *testing.T) {
	g := NewGate(DefaultSMAThreshold, DefaultGyroRMSThreshold)
	if g.ShouldSkip(constWindow(125, 0, 0, 0)) {
		t.Fatal("all-zero window should not be skipped")
	}
	if g.ShouldSkip(nil) {
		t.Fatal("empty window should not be skipped")
	}
}

func TestShouldSkipAtThreshold(t *testing.T) {
	g := NewGate(3.0, DefaultGyroRMSThreshold)
	if !g.ShouldSkip(constWindow(10, 1, -1, 1)) {
		t.Fatal("SMA equal to the threshold should be skipped")
	}
	if g.ShouldSkip(constWindow(10, 1, -1, 0.99)) {
		t.Fatal("SMA just below the threshold should pass")
	}
	if !g.ShouldSkip(constWindow(10, 5, 0, 0)) {
		t.Fatal("SMA above the threshold should be skipped")
	}
}

func TestShouldSkipWithGyroIsOr(t *testing.T) {
	g := NewGate(DefaultSMAThreshold, 0.05)
	still := constWindow(50, 0, 0, 0)
	if g.ShouldSkipWithGyro(still, constWindow(50, 0.01, 0, 0)) {
		t.Fatal("quiet acc and gyro should pass")
	}
	if !g.ShouldSkipWithGyro(still, constWindow(50, 0.05, 0, 0)) {
		t.Fatal("gyro RMS at the threshold should skip")
	}
	if !g.ShouldSkipWithGyro(constWindow(50, 3, 0, 0), constWindow(50, 0, 0, 0)) {
		t.Fatal("acc motion alone should skip")
	}
}

func TestRMS(t *testing.T) {
	if got := RMS(constWindow(4, 3, 4, 0)); got != 5 {
		t.Fatalf("RMS = %v, want 5", got)
	}
}
