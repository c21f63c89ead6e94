package arinc429

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReverseLabel(t *testing.T) {
	tests := []struct {
		in, want uint8
	}{
		{0x00, 0x00},
		{0x01, 0x80},
		{0x80, 0x01},
		{0xFF, 0xFF},
		{0b1100_1010, 0b0101_0011},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ReverseLabel(tt.in), "label %08b", tt.in)
	}
}

func TestReverseLabelIsInvolution(t *testing.T) {
	for v := 0; v < 256; v++ {
		assert.Equal(t, uint8(v), ReverseLabel(ReverseLabel(uint8(v))))
	}
}

func TestOctalLabels(t *testing.T) {
	assert.Equal(t, "312", FormatOctal(0o312))
	assert.Equal(t, "007", FormatOctal(7))

	v, err := ParseOctal("203")
	require.NoError(t, err)
	assert.Equal(t, uint8(0o203), v)

	_, err = ParseOctal("9")
	assert.Error(t, err)
	_, err = ParseOctal("777")
	assert.Error(t, err)
}
