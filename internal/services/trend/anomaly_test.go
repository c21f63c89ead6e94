package trend

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnomalyDetectorBounds(t *testing.T) {
	tests := []struct {
		name     string
		profile  ThresholdProfile
		windows  [][]float64
		want     bool
		channel  int
		position int
	}{
		{
			name:    "generic within bound",
			profile: GenericProfile(1000),
			windows: [][]float64{{999, -1000}, {0, 0}},
			want:    false,
		},
		{
			name:     "generic negative excursion",
			profile:  GenericProfile(1000),
			windows:  [][]float64{{0, 0}, {0, -1000.5}},
			want:     true,
			channel:  1,
			position: 1,
		},
		{
			name:    "per channel respects own bound",
			profile: PerChannelProfile(90, 180),
			windows: [][]float64{{89.9, -90}, {179, -180}},
			want:    false,
		},
		{
			name:     "per channel latitude exceeded",
			profile:  PerChannelProfile(90, 180),
			windows:  [][]float64{{45, 90.1}, {0, 0}},
			want:     true,
			channel:  0,
			position: 1,
		},
		{
			name:     "first hit in channel-major order",
			profile:  GenericProfile(10),
			windows:  [][]float64{{0, 0, 11}, {12, 0, 0}},
			want:     true,
			channel:  0,
			position: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewAnomalyDetector(tt.profile, len(tt.windows))
			assert.Equal(t, tt.want, d.Detect(tt.windows))
			ex, found := d.Scan(tt.windows)
			assert.Equal(t, tt.want, found)
			if tt.want {
				assert.Equal(t, tt.channel, ex.Channel)
				assert.Equal(t, tt.position, ex.Index)
			}
		})
	}
}

func TestAnomalyDetectorFlightBounds(t *testing.T) {
	d := NewAnomalyDetector(FlightConfig().Profile, 5)
	assert.Equal(t, []float64{500, 50000, 90, 180, 1000}, d.Bounds())
}
