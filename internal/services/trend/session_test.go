package trend

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AeroTrend/internal/domain/models"
)

func newGeneric(t *testing.T) *Session {
	t.Helper()
	s, err := NewSession(GenericConfig())
	require.NoError(t, err)
	return s
}

// feed runs ticks built by gen(tick) and returns every result.
func feed(t *testing.T, s *Session, ticks int, gen func(tick int) []float64) []models.ClassificationResult {
	t.Helper()
	out := make([]models.ClassificationResult, 0, ticks)
	for i := 1; i <= ticks; i++ {
		res, err := s.Tick(gen(i))
		require.NoError(t, err)
		out = append(out, res)
	}
	return out
}

func zeros(int) []float64 { return []float64{0, 0, 0, 0, 0} }

func TestSessionColdStartReportsDefault(t *testing.T) {
	s := newGeneric(t)
	results := feed(t, s, 9, func(i int) []float64 { return []float64{float64(i) * 50, 0, 0, 0, 0} })
	for _, r := range results {
		assert.Equal(t, models.LabelStable, r.Label)
		assert.Equal(t, 0.0, r.Confidence)
		assert.False(t, r.Warm)
		assert.Equal(t, []float64{0, 0, 0, 0, 0}, r.PerChannelTrend)
		assert.Equal(t, 0.0, r.WeightedTrend)
	}
	assert.False(t, s.Warm())
	assert.Equal(t, 9, s.Fill())
	assert.Equal(t, models.InitialSessionState(), s.State())
}

func TestSessionAllZeroWarmsToStable(t *testing.T) {
	s := newGeneric(t)
	results := feed(t, s, 10, zeros)
	last := results[9]
	assert.True(t, last.Warm)
	assert.Equal(t, models.LabelStable, last.Label)
	assert.Equal(t, ConfidenceStable, last.Confidence)
	assert.Equal(t, []float64{0, 0, 0, 0, 0}, last.PerChannelTrend)
	assert.Equal(t, 0.0, last.WeightedTrend)

	frame := last.HostFrame()
	assert.Equal(t, 1.0, frame.State)
	assert.Equal(t, 1.0, frame.NameCode)
	assert.Len(t, frame.Trends, 6)
}

func TestSessionSmallRampStaysStable(t *testing.T) {
	s := newGeneric(t)
	results := feed(t, s, 10, func(i int) []float64 { return []float64{float64(i), 0, 0, 0, 0} })
	last := results[9]
	assert.InDelta(t, 1.0, last.PerChannelTrend[0], 1e-12)
	assert.InDelta(t, 0.4, last.WeightedTrend, 1e-12)
	assert.Equal(t, models.LabelStable, last.Label)
	assert.Equal(t, ConfidenceStable, last.Confidence)
}

func TestSessionAmbiguousBandCarriesPreviousLabel(t *testing.T) {
	s := newGeneric(t)
	// slope 2.5 on the 0.4-weighted channel -> weighted trend 1.0
	results := feed(t, s, 10, func(i int) []float64 { return []float64{2.5 * float64(i), 0, 0, 0, 0} })
	last := results[9]
	assert.InDelta(t, 1.0, last.WeightedTrend, 1e-12)
	assert.Equal(t, models.LabelStable, last.Label)
	assert.Equal(t, ConfidenceCarryOver, last.Confidence)
}

func TestSessionAnomalyIsImmediate(t *testing.T) {
	s := newGeneric(t)
	feed(t, s, 10, zeros)

	res, err := s.Tick([]float64{0, 0, 2000, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, models.LabelAnomaly, res.Label)
	assert.Equal(t, ConfidenceAnomaly, res.Confidence)
	assert.True(t, res.Anomaly)
	assert.Equal(t, models.LabelAnomaly, s.State().PreviousLabel)
}

func TestSessionAnomalyPersistsWhileInWindow(t *testing.T) {
	s := newGeneric(t)
	feed(t, s, 9, zeros)
	_, err := s.Tick([]float64{-1500, 0, 0, 0, 0})
	require.NoError(t, err)

	// the spike stays inside the lookback for nine more ticks
	results := feed(t, s, 9, zeros)
	for _, r := range results {
		assert.Equal(t, models.LabelAnomaly, r.Label)
	}
	// evicted: Stable must be proposed twice before it is reported
	r1, err := s.Tick(zeros(0))
	require.NoError(t, err)
	assert.Equal(t, models.LabelAnomaly, r1.Label)
	r2, err := s.Tick(zeros(0))
	require.NoError(t, err)
	assert.Equal(t, models.LabelStable, r2.Label)
}

func TestSessionHysteresisNeedsTwoTicks(t *testing.T) {
	s := newGeneric(t)
	feed(t, s, 10, zeros)
	require.Equal(t, models.LabelStable, s.State().PreviousLabel)

	// slope 3 on every channel: weighted trend 3, variance below the
	// oscillation threshold
	window := make([]float64, 0, 10)
	for i := 1; i <= 10; i++ {
		window = append(window, 3*float64(i))
	}
	batch := [][]float64{window, window, window, window, window}

	r1, err := s.ClassifyWindow(batch)
	require.NoError(t, err)
	assert.Equal(t, models.LabelStable, r1.Label)
	assert.Equal(t, ConfidenceDirectional, r1.Confidence)
	assert.Equal(t, 1, s.State().ConsistencyCounter)

	r2, err := s.ClassifyWindow(batch)
	require.NoError(t, err)
	assert.Equal(t, models.LabelIncreasing, r2.Label)
	assert.Equal(t, 2, s.State().ConsistencyCounter)
	assert.Equal(t, models.LabelIncreasing, s.State().PreviousLabel)
}

func TestSessionDecreasingAndOscillating(t *testing.T) {
	s := newGeneric(t)
	down := make([]float64, 10)
	for i := range down {
		down[i] = 100 - 3*float64(i)
	}
	flat := make([]float64, 10)
	batch := [][]float64{down, down, down, down, down}
	_, err := s.ClassifyWindow(batch)
	require.NoError(t, err)
	res, err := s.ClassifyWindow(batch)
	require.NoError(t, err)
	assert.Equal(t, models.LabelDecreasing, res.Label)
	assert.InDelta(t, -3.0, res.WeightedTrend, 1e-9)
	assert.Less(t, res.MaxVariance, 100.0)

	swing := []float64{-40, 40, -40, 40, -40, 40, -40, 40, -40, 40}
	_, err = s.ClassifyWindow([][]float64{flat, flat, swing, flat, flat})
	require.NoError(t, err)
	res, err = s.ClassifyWindow([][]float64{flat, flat, swing, flat, flat})
	require.NoError(t, err)
	assert.Equal(t, models.LabelOscillating, res.Label)
	assert.Equal(t, ConfidenceOscillating, res.Confidence)
	assert.Greater(t, res.MaxVariance, 100.0)
}

func TestSessionResetReplaysIdentically(t *testing.T) {
	s := newGeneric(t)
	gen := func(i int) []float64 {
		return []float64{
			math.Sin(float64(i)) * 30,
			float64(i*i) * 0.7,
			-3 * float64(i),
			float64(i % 4),
			0.01 * float64(i),
		}
	}
	first := feed(t, s, 40, gen)

	s.Reset()
	s.Reset()
	assert.Equal(t, models.InitialSessionState(), s.State())
	assert.False(t, s.Warm())

	second := feed(t, s, 40, gen)
	assert.Equal(t, first, second)
}

func TestSessionRejectsInvalidTicksWithoutStateChange(t *testing.T) {
	s := newGeneric(t)
	feed(t, s, 10, zeros)
	before := s.Windows()
	state := s.State()
	seq := s.Seq()

	_, err := s.Tick([]float64{0, 0, 0})
	require.ErrorIs(t, err, ErrChannelCount)

	_, err = s.Tick([]float64{0, math.NaN(), 0, 0, 0})
	require.ErrorIs(t, err, ErrNonFiniteSample)
	var se *SampleError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "altitude", se.Channel)

	_, err = s.Tick([]float64{0, 0, 0, 0, math.Inf(-1)})
	require.ErrorIs(t, err, ErrNonFiniteSample)

	_, err = s.ClassifyWindow([][]float64{{1, 2}, {1, 2}, {1, 2}, {1, 2}, {1, 2}})
	require.ErrorIs(t, err, ErrWindowLength)

	assert.Equal(t, before, s.Windows())
	assert.Equal(t, state, s.State())
	assert.Equal(t, seq, s.Seq())
}

func TestSessionCloseAndStart(t *testing.T) {
	s := newGeneric(t)
	feed(t, s, 12, zeros)
	s.Close()
	assert.True(t, s.Closed())
	_, err := s.Tick(zeros(0))
	require.ErrorIs(t, err, ErrSessionClosed)

	s.Start()
	assert.False(t, s.Closed())
	assert.Equal(t, uint64(0), s.Seq())
	res, err := s.Tick(zeros(0))
	require.NoError(t, err)
	assert.False(t, res.Warm)
}

func TestFlightSessionUsesPerChannelBounds(t *testing.T) {
	s, err := NewSession(FlightConfig())
	require.NoError(t, err)

	// 95 degrees latitude is invalid even though it is far below 1000
	results := feed(t, s, 10, func(i int) []float64 {
		lat := 45.0
		if i == 3 {
			lat = 95.0
		}
		return []float64{200, 10000, lat, 12, 5}
	})
	assert.Equal(t, models.LabelAnomaly, results[9].Label)

	s.Reset()
	results = feed(t, s, 10, func(int) []float64 { return []float64{200, 10000, 45, 12, 5} })
	assert.Equal(t, models.LabelStable, results[9].Label)
	assert.False(t, results[9].Anomaly)
}

func TestSessionsDoNotShareState(t *testing.T) {
	a := newGeneric(t)
	b := newGeneric(t)
	feed(t, a, 10, zeros)
	_, err := a.Tick([]float64{5000, 0, 0, 0, 0})
	require.NoError(t, err)

	assert.Equal(t, models.LabelAnomaly, a.State().PreviousLabel)
	assert.Equal(t, models.InitialSessionState(), b.State())
	assert.Equal(t, 0, b.Fill())
}
