package trend

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig rejects a session before any tick runs.
	ErrInvalidConfig = errors.New("trend: invalid config")
	// ErrChannelCount is returned when a sample vector does not match the configured channels.
	ErrChannelCount = errors.New("trend: channel count mismatch")
	// ErrWindowLength is returned when a batch window row does not hold exactly N samples.
	ErrWindowLength = errors.New("trend: window length mismatch")
	// ErrNonFiniteSample is matched by every *SampleError.
	ErrNonFiniteSample = errors.New("trend: non-finite sample")
	// ErrSessionClosed is returned by ticks after Close.
	ErrSessionClosed = errors.New("trend: session closed")
)

// SampleError reports a rejected NaN or Inf sample. The tick that carried it
// leaves the session untouched.
type SampleError struct {
	Channel string
	Index   int
	Value   float64
}

func (e *SampleError) Error() string {
	return fmt.Sprintf("trend: non-finite sample %v on channel %s (index %d)", e.Value, e.Channel, e.Index)
}

func (e *SampleError) Is(target error) bool { return target == ErrNonFiniteSample }

func configErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
