package trend

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"AeroTrend/internal/domain/models"
)

func TestDecidePriority(t *testing.T) {
	th := Thresholds{Stable: 0.5, Increase: 2.0, Decrease: -2.0, Oscillation: 100}

	tests := []struct {
		name     string
		anomaly  bool
		variance float64
		trend    float64
		previous models.Label
		want     Decision
	}{
		{"anomaly beats everything", true, 500, 10, models.LabelStable, Decision{models.LabelAnomaly, ConfidenceAnomaly}},
		{"oscillation beats trend", false, 100.01, 10, models.LabelStable, Decision{models.LabelOscillating, ConfidenceOscillating}},
		{"variance at threshold is not oscillating", false, 100, 0, models.LabelStable, Decision{models.LabelStable, ConfidenceStable}},
		{"increasing", false, 1, 2.01, models.LabelStable, Decision{models.LabelIncreasing, ConfidenceDirectional}},
		{"increase threshold is exclusive", false, 1, 2.0, models.LabelDecreasing, Decision{models.LabelDecreasing, ConfidenceCarryOver}},
		{"decreasing", false, 1, -2.01, models.LabelStable, Decision{models.LabelDecreasing, ConfidenceDirectional}},
		{"stable band inclusive", false, 1, -0.5, models.LabelIncreasing, Decision{models.LabelStable, ConfidenceStable}},
		{"ambiguous band carries previous", false, 1, 1.2, models.LabelOscillating, Decision{models.LabelOscillating, ConfidenceCarryOver}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.anomaly, tt.variance, tt.trend, th, tt.previous))
		})
	}
}

func TestStateMachineRequiresTwoConsistentTicks(t *testing.T) {
	m := NewStateMachine()

	assert.Equal(t, models.LabelStable, m.Step(models.LabelIncreasing))
	assert.Equal(t, 1, m.State().ConsistencyCounter)
	assert.Equal(t, models.LabelIncreasing, m.State().Candidate)

	assert.Equal(t, models.LabelIncreasing, m.Step(models.LabelIncreasing))
	assert.Equal(t, 2, m.State().ConsistencyCounter)
	assert.Equal(t, models.LabelIncreasing, m.Previous())
}

func TestStateMachineAlternatingNeverCommits(t *testing.T) {
	m := NewStateMachine()
	for i := 0; i < 6; i++ {
		next := models.LabelIncreasing
		if i%2 == 1 {
			next = models.LabelDecreasing
		}
		assert.Equal(t, models.LabelStable, m.Step(next))
		assert.Equal(t, 1, m.State().ConsistencyCounter)
	}
}

func TestStateMachineAnomalyBypassesHysteresis(t *testing.T) {
	m := NewStateMachine()
	assert.Equal(t, models.LabelAnomaly, m.Step(models.LabelAnomaly))
	assert.Equal(t, models.LabelAnomaly, m.Previous())

	assert.Equal(t, models.LabelAnomaly, m.Step(models.LabelStable))
	assert.Equal(t, models.LabelStable, m.Step(models.LabelStable))
}

func TestStateMachineReset(t *testing.T) {
	m := NewStateMachine()
	m.Step(models.LabelAnomaly)
	m.Reset()
	assert.Equal(t, models.InitialSessionState(), m.State())
	m.Reset()
	assert.Equal(t, models.InitialSessionState(), m.State())
}
