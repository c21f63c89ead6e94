package features

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// degenerateDenominator guards the regression denominator.
const degenerateDenominator = 1e-10

// FeatureSet holds the per-channel features of one warm window.
type FeatureSet struct {
	Slope    []float64
	Variance []float64
}

// Slope computes the ordinary least-squares coefficient of value against the
// sample index 1..N. It returns 0 when the regression is degenerate.
func Slope(window []float64) float64 {
	n := len(window)
	if n == 0 || constant(window) {
		return 0
	}
	var sumX, sumXX, sumXY float64
	for i, v := range window {
		x := float64(i + 1)
		sumX += x
		sumXX += x * x
		sumXY += x * v
	}
	sumY := floats.Sum(window)

	fn := float64(n)
	den := fn*sumXX - sumX*sumX
	if math.Abs(den) < degenerateDenominator {
		return 0
	}
	return (fn*sumXY - sumX*sumY) / den
}

// Variance is the unbiased sample variance (denominator N-1).
// Windows shorter than two samples have no spread and yield 0.
func Variance(window []float64) float64 {
	if len(window) < 2 || constant(window) {
		return 0
	}
	return stat.Variance(window, nil)
}

// constant reports whether every sample equals the first one. Such windows
// have exactly zero slope and spread regardless of rounding in the sums.
func constant(window []float64) bool {
	return floats.Max(window) == floats.Min(window)
}

// Extract computes slope and variance for every channel window.
func Extract(windows [][]float64) FeatureSet {
	fs := FeatureSet{
		Slope:    make([]float64, len(windows)),
		Variance: make([]float64, len(windows)),
	}
	for c, w := range windows {
		fs.Slope[c] = Slope(w)
		fs.Variance[c] = Variance(w)
	}
	return fs
}

// WeightedTrend returns Σ weight_c · slope_c.
func WeightedTrend(slopes, weights []float64) float64 {
	if len(slopes) != len(weights) || len(slopes) == 0 {
		return 0
	}
	return floats.Dot(slopes, weights)
}

// MaxVariance returns the largest channel variance, 0 for no channels.
func MaxVariance(variances []float64) float64 {
	if len(variances) == 0 {
		return 0
	}
	return floats.Max(variances)
}
