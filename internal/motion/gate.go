// Package motion rejects windows recorded while the wearer is moving.
package motion

import "math"

// StandardGravity in m/s².
const StandardGravity = 9.80665

const (
	// DefaultSMAThreshold is 0.30 g.
	DefaultSMAThreshold = 0.30 * StandardGravity
	// DefaultGyroRMSThreshold is in rad/s.
	DefaultGyroRMSThreshold = 0.05
)

// Gate compares window motion energy against fixed thresholds.
type Gate struct {
	smaThreshold  float64
	gyroThreshold float64
}

// NewGate builds a gate. Non-positive thresholds fall back to the defaults.
func NewGate(smaThreshold, gyroThreshold float64) Gate {
	if smaThreshold <= 0 {
		smaThreshold = DefaultSMAThreshold
	}
	if gyroThreshold <= 0 {
		gyroThreshold = DefaultGyroRMSThreshold
	}
	return Gate{smaThreshold: smaThreshold, gyroThreshold: gyroThreshold}
}

// ShouldSkip reports whether the flattened acceleration window carries too
// much linear motion to classify.
func (g Gate) ShouldSkip(acc []float64) bool {
	return SMA(acc) >= g.smaThreshold
}

// ShouldSkipWithGyro also rejects windows with strong angular motion.
func (g Gate) ShouldSkipWithGyro(acc, gyro []float64) bool {
	return g.ShouldSkip(acc) || RMS(gyro) >= g.gyroThreshold
}

// SMA is the signal magnitude area: sum(|x|+|y|+|z|) over the sample count.
// An empty window yields 0.
func SMA(window []float64) float64 {
	n := len(window) / 3
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += math.Abs(window[3*i]) + math.Abs(window[3*i+1]) + math.Abs(window[3*i+2])
	}
	return sum / float64(n)
}

// RMS is the root mean square of the per-sample vector magnitude.
func RMS(window []float64) float64 {
	n := len(window) / 3
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		x, y, z := window[3*i], window[3*i+1], window[3*i+2]
		sum += x*x + y*y + z*z
	}
	return math.Sqrt(sum / float64(n))
}
