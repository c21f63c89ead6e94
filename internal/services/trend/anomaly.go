package trend

import "math"

// Exceedance locates the first windowed sample found outside its bound.
type Exceedance struct {
	Channel int
	Index   int
	Value   float64
	Bound   float64
}

// AnomalyDetector checks every sample of every window against the channel bound.
// The whole lookback is scanned, so one bad sample anywhere keeps the anomaly
// raised until it is evicted.
type AnomalyDetector struct {
	bounds []float64
}

// NewAnomalyDetector resolves the profile into one bound per channel.
func NewAnomalyDetector(profile ThresholdProfile, channels int) *AnomalyDetector {
	bounds := make([]float64, channels)
	for c := range bounds {
		if profile.Kind == ProfilePerChannel && c < len(profile.Bounds) {
			bounds[c] = profile.Bounds[c]
		} else {
			bounds[c] = profile.Bound
		}
	}
	return &AnomalyDetector{bounds: bounds}
}

// Bounds returns a copy of the per-channel bounds.
func (d *AnomalyDetector) Bounds() []float64 {
	return append([]float64(nil), d.bounds...)
}

// Scan returns the first exceedance in channel-major order.
func (d *AnomalyDetector) Scan(windows [][]float64) (Exceedance, bool) {
	for c, win := range windows {
		if c >= len(d.bounds) {
			break
		}
		bound := d.bounds[c]
		for i, v := range win {
			if math.Abs(v) > bound {
				return Exceedance{Channel: c, Index: i, Value: v, Bound: bound}, true
			}
		}
	}
	return Exceedance{}, false
}

// Detect reports whether any windowed sample exceeds its bound in magnitude.
func (d *AnomalyDetector) Detect(windows [][]float64) bool {
	_, found := d.Scan(windows)
	return found
}
