package models

import (
	"fmt"
	"strings"
	"time"

	"AeroTrend/pkg/util"
)

// Label is the externally visible trend state of a session.
type Label int

const (
	LabelUnknown     Label = 0
	LabelStable      Label = 1
	LabelIncreasing  Label = 2
	LabelDecreasing  Label = 3
	LabelOscillating Label = 4
	LabelAnomaly     Label = 5
)

var labelNames = map[Label]string{
	LabelStable:      "STABLE",
	LabelIncreasing:  "INCREASING",
	LabelDecreasing:  "DECREASING",
	LabelOscillating: "OSCILLATING",
	LabelAnomaly:     "ANOMALY",
}

// Code returns the integer code carried on numeric host ports.
func (l Label) Code() int {
	if _, ok := labelNames[l]; !ok {
		return int(LabelUnknown)
	}
	return int(l)
}

func (l Label) String() string {
	if s, ok := labelNames[l]; ok {
		return s
	}
	return "UNKNOWN"
}

// MarshalText encodes the label by name so JSON payloads stay readable.
func (l Label) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Label) UnmarshalText(b []byte) error {
	parsed, err := ParseLabel(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseLabel resolves a textual label name (case-insensitive).
func ParseLabel(s string) (Label, error) {
	up := strings.ToUpper(strings.TrimSpace(s))
	if up == "UNKNOWN" {
		return LabelUnknown, nil
	}
	for l, name := range labelNames {
		if name == up {
			return l, nil
		}
	}
	return LabelUnknown, fmt.Errorf("unknown label %q", s)
}

// LabelFromCode maps a host integer code back to a Label.
func LabelFromCode(code int) Label {
	l := Label(code)
	if _, ok := labelNames[l]; ok {
		return l
	}
	return LabelUnknown
}

// ClassificationResult is produced once per tick and never mutated afterwards.
type ClassificationResult struct {
	SessionID       string    `json:"session_id,omitempty"`
	Seq             uint64    `json:"seq"`
	Timestamp       time.Time `json:"timestamp"`
	Label           Label     `json:"label"`
	Confidence      float64   `json:"confidence"`
	PerChannelTrend []float64 `json:"per_channel_trend"`
	WeightedTrend   float64   `json:"weighted_trend"`
	MaxVariance     float64   `json:"max_variance"`
	Anomaly         bool      `json:"anomaly"`
	Warm            bool      `json:"warm"`
}

// HostFrame is the numeric layout expected by the cyclic host:
// state code, confidence, slopes followed by the weighted trend, and a name code.
type HostFrame struct {
	State      float64   `json:"state"`
	Confidence float64   `json:"confidence"`
	Trends     []float64 `json:"trends"`
	NameCode   float64   `json:"name_code"`
}

// HostFrame serializes the result for numeric-only host ports.
func (r ClassificationResult) HostFrame() HostFrame {
	trends := make([]float64, 0, len(r.PerChannelTrend)+1)
	trends = append(trends, r.PerChannelTrend...)
	trends = append(trends, r.WeightedTrend)
	code := float64(r.Label.Code())
	return HostFrame{
		State:      code,
		Confidence: r.Confidence,
		Trends:     trends,
		NameCode:   code,
	}
}

// SessionState is the persistent part of a classifier session. Candidate is
// the provisional label the consistency counter is currently counting.
type SessionState struct {
	PreviousLabel      Label `json:"previous_label"`
	Candidate          Label `json:"candidate"`
	ConsistencyCounter int   `json:"consistency_counter"`
}

// InitialSessionState is the state after construction or reset.
func InitialSessionState() SessionState {
	return SessionState{PreviousLabel: LabelStable, Candidate: LabelStable}
}

// ARINCWord carries one channel sample as received from an ARINC 429 bus:
// the label in wire order (LSB first) and the 19-bit BCD data field.
type ARINCWord struct {
	Label uint8     `json:"label"`
	BCD   [19]uint8 `json:"bcd"`
}

// TickFrame is one sample vector addressed to a session.
// Either Samples or Words is set; Words are decoded into Samples on ingest.
type TickFrame struct {
	SessionID string      `json:"session_id"`
	Timestamp int64       `json:"t"`
	Samples   []float64   `json:"samples,omitempty"`
	Words     []ARINCWord `json:"words,omitempty"`
}

// Time returns the frame timestamp, accepting seconds or milliseconds.
func (f TickFrame) Time() time.Time {
	if f.Timestamp == 0 {
		return time.Now()
	}
	return util.UnixAuto(f.Timestamp)
}
