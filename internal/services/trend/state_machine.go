package trend

import (
	"math"

	"AeroTrend/internal/domain/models"
)

// Fixed confidence per provisional label.
const (
	ConfidenceAnomaly     = 0.95
	ConfidenceOscillating = 0.80
	ConfidenceDirectional = 0.85
	ConfidenceStable      = 0.90
	ConfidenceCarryOver   = 0.60
)

// requiredConsistency is the number of consecutive identical provisional
// labels needed before a non-anomaly label is reported.
const requiredConsistency = 2

// Decision is the provisional label of one tick before hysteresis.
type Decision struct {
	Label      models.Label
	Confidence float64
}

// Decide applies the priority rules; the first match wins. Inside the
// ambiguous band the previous label is carried over.
func Decide(anomaly bool, maxVariance, weightedTrend float64, th Thresholds, previous models.Label) Decision {
	switch {
	case anomaly:
		return Decision{models.LabelAnomaly, ConfidenceAnomaly}
	case maxVariance > th.Oscillation:
		return Decision{models.LabelOscillating, ConfidenceOscillating}
	case weightedTrend > th.Increase:
		return Decision{models.LabelIncreasing, ConfidenceDirectional}
	case weightedTrend < th.Decrease:
		return Decision{models.LabelDecreasing, ConfidenceDirectional}
	case math.Abs(weightedTrend) <= th.Stable:
		return Decision{models.LabelStable, ConfidenceStable}
	default:
		return Decision{previous, ConfidenceCarryOver}
	}
}

// StateMachine debounces provisional labels. Anomaly takes effect at once;
// every other label must be proposed on two consecutive ticks before it
// replaces the reported label.
type StateMachine struct {
	state models.SessionState
}

// NewStateMachine starts in Stable with a zero counter.
func NewStateMachine() *StateMachine {
	return &StateMachine{state: models.InitialSessionState()}
}

// Previous is the last label that took effect.
func (m *StateMachine) Previous() models.Label { return m.state.PreviousLabel }

// State returns a copy of the session state.
func (m *StateMachine) State() models.SessionState { return m.state }

// Step advances the machine with one provisional label and returns the label
// to report for this tick.
func (m *StateMachine) Step(provisional models.Label) models.Label {
	if provisional == m.state.Candidate {
		m.state.ConsistencyCounter++
	} else {
		m.state.Candidate = provisional
		m.state.ConsistencyCounter = 1
	}

	if m.state.ConsistencyCounter >= requiredConsistency || provisional == models.LabelAnomaly {
		m.state.PreviousLabel = provisional
		return provisional
	}
	return m.state.PreviousLabel
}

// Reset returns to the initial state.
func (m *StateMachine) Reset() {
	m.state = models.InitialSessionState()
}
