package trend

import (
	"fmt"
	"math"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

// DefaultWindowSize is the lookback N used by both reference deployments.
const DefaultWindowSize = 10

// weightSumTolerance bounds the rounding allowed when weights are summed.
const weightSumTolerance = 1e-9

var validate = validator.New()

// ProfileKind selects how the anomaly detector bounds each channel.
type ProfileKind string

const (
	// ProfileGeneric applies one magnitude bound to every channel.
	ProfileGeneric ProfileKind = "generic"
	// ProfilePerChannel uses a distinct bound per channel, in channel order.
	ProfilePerChannel ProfileKind = "per_channel"
)

// ThresholdProfile is the tagged anomaly bound configuration.
type ThresholdProfile struct {
	Kind   ProfileKind `yaml:"kind" json:"kind" default:"generic" validate:"oneof=generic per_channel"`
	Bound  float64     `yaml:"bound" json:"bound,omitempty"`
	Bounds []float64   `yaml:"bounds" json:"bounds,omitempty"`
}

// GenericProfile bounds every channel by the same magnitude.
func GenericProfile(bound float64) ThresholdProfile {
	return ThresholdProfile{Kind: ProfileGeneric, Bound: bound}
}

// PerChannelProfile bounds channel i by bounds[i].
func PerChannelProfile(bounds ...float64) ThresholdProfile {
	return ThresholdProfile{Kind: ProfilePerChannel, Bounds: append([]float64(nil), bounds...)}
}

// Thresholds drive the provisional label decision.
type Thresholds struct {
	Stable      float64 `yaml:"stable" json:"stable" default:"0.5" validate:"gt=0"`
	Increase    float64 `yaml:"increase" json:"increase" default:"2.0" validate:"gt=0"`
	Decrease    float64 `yaml:"decrease" json:"decrease" default:"-2.0" validate:"lt=0"`
	Oscillation float64 `yaml:"oscillation" json:"oscillation" default:"100.0" validate:"gt=0"`
}

// Config parameterizes a classifier session: channel list, weight vector and
// threshold profile. A zero WindowSize means DefaultWindowSize.
type Config struct {
	Name        string           `yaml:"name" json:"name"`
	WindowSize  int              `yaml:"window_size" json:"window_size" default:"10"`
	Channels    []string         `yaml:"channels" json:"channels" validate:"required,min=1,dive,required"`
	Weights     []float64        `yaml:"weights" json:"weights" validate:"required,dive,gte=0,lte=1"`
	Profile     ThresholdProfile `yaml:"profile" json:"profile"`
	Thresholds  Thresholds       `yaml:"thresholds" json:"thresholds"`
	ARINCLabels []uint8          `yaml:"arinc_labels" json:"arinc_labels,omitempty"`
}

// GenericConfig is the air-data preset: five channels bounded by 1000.0.
func GenericConfig() Config {
	return Config{
		Name:       "generic",
		WindowSize: DefaultWindowSize,
		Channels:   []string{"velocity", "altitude", "temperature", "pressure", "mach"},
		Weights:    []float64{0.4, 0.3, 0.1, 0.1, 0.1},
		Profile:    GenericProfile(1000.0),
	}
}

// FlightConfig is the flight-track preset with per-channel physical bounds.
func FlightConfig() Config {
	return Config{
		Name:       "flight",
		WindowSize: DefaultWindowSize,
		Channels:   []string{"velocity", "baro_altitude", "latitude", "longitude", "vertical_rate"},
		Weights:    []float64{0.4, 0.3, 0.1, 0.1, 0.1},
		Profile:    PerChannelProfile(500.0, 50000.0, 90.0, 180.0, 1000.0),
		// octal labels: ground speed, baro altitude, latitude, longitude, altitude rate
		ARINCLabels: []uint8{0o312, 0o203, 0o310, 0o311, 0o212},
	}
}

// Preset resolves a preset by name.
func Preset(name string) (Config, bool) {
	switch name {
	case "generic", "":
		return GenericConfig(), true
	case "flight":
		return FlightConfig(), true
	default:
		return Config{}, false
	}
}

// Normalize fills defaults in place.
func (c *Config) Normalize() error {
	if err := defaults.Set(c); err != nil {
		return configErrorf("defaults: %v", err)
	}
	return nil
}

// Validate checks every construction-time invariant.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return configErrorf("%v", err)
	}
	if c.WindowSize < 2 {
		return configErrorf("window_size must be at least 2, got %d", c.WindowSize)
	}
	if len(c.Weights) != len(c.Channels) {
		return fmt.Errorf("%w: %w: %d weights for %d channels", ErrInvalidConfig, ErrChannelCount, len(c.Weights), len(c.Channels))
	}

	seen := make(map[string]struct{}, len(c.Channels))
	for _, name := range c.Channels {
		if _, dup := seen[name]; dup {
			return configErrorf("duplicate channel %q", name)
		}
		seen[name] = struct{}{}
	}

	var sum float64
	for _, w := range c.Weights {
		sum += w
	}
	if math.Abs(sum-1.0) > weightSumTolerance {
		return configErrorf("weights must sum to 1.0, got %v", sum)
	}

	switch c.Profile.Kind {
	case ProfileGeneric:
		if c.Profile.Bound <= 0 {
			return configErrorf("generic profile bound must be positive, got %v", c.Profile.Bound)
		}
	case ProfilePerChannel:
		if len(c.Profile.Bounds) != len(c.Channels) {
			return fmt.Errorf("%w: %w: %d bounds for %d channels", ErrInvalidConfig, ErrChannelCount, len(c.Profile.Bounds), len(c.Channels))
		}
		for i, b := range c.Profile.Bounds {
			if b <= 0 {
				return configErrorf("bound for channel %s must be positive, got %v", c.Channels[i], b)
			}
		}
	}

	th := c.Thresholds
	if th.Stable >= th.Increase || -th.Stable <= th.Decrease {
		return configErrorf("stable band %v must sit inside (%v, %v)", th.Stable, th.Decrease, th.Increase)
	}

	if len(c.ARINCLabels) != 0 {
		if len(c.ARINCLabels) != len(c.Channels) {
			return fmt.Errorf("%w: %w: %d arinc labels for %d channels", ErrInvalidConfig, ErrChannelCount, len(c.ARINCLabels), len(c.Channels))
		}
		labels := make(map[uint8]struct{}, len(c.ARINCLabels))
		for _, l := range c.ARINCLabels {
			if _, dup := labels[l]; dup {
				return configErrorf("duplicate arinc label %#o", l)
			}
			labels[l] = struct{}{}
		}
	}
	return nil
}

// ChannelIndex returns the position of a channel by name.
func (c Config) ChannelIndex(name string) (int, bool) {
	for i, n := range c.Channels {
		if n == name {
			return i, true
		}
	}
	return -1, false
}

func (c Config) clone() Config {
	out := c
	out.Channels = append([]string(nil), c.Channels...)
	out.Weights = append([]float64(nil), c.Weights...)
	out.Profile.Bounds = append([]float64(nil), c.Profile.Bounds...)
	out.ARINCLabels = append([]uint8(nil), c.ARINCLabels...)
	return out
}
