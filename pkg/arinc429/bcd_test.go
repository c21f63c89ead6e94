package arinc429

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBCD(t *testing.T) {
	tests := []struct {
		name string
		bits string
		want float64
	}{
		{"zero", "000 0000 0000 0000 0000", 0},
		{"ones digit", "000 0000 0000 0000 0111", 7},
		{"every digit", "001 0010 0011 0100 0101", 12345},
		{"largest leading digit", "111 1001 1001 1001 1001", 79999},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := ParseBits(tt.bits)
			require.NoError(t, err)
			assert.Equal(t, tt.want, DecodeBCD(b))
		})
	}
}

func TestEncodeBCD(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		want  string
	}{
		{"zero", 0, "0000000000000000000"},
		{"negative clamps to zero", -42, "0000000000000000000"},
		{"truncates fraction", 12345.9, "0010010001101000101"},
		{"above range clamps", 1e9, "0011001100110011001"},
		{"nan encodes zero", math.NaN(), "0000000000000000000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatBits(EncodeBCD(tt.value)))
		})
	}
}

func TestBCDRoundTrip(t *testing.T) {
	for _, v := range []float64{0, 1, 9, 10, 99, 4096, 12345, 50000, 79999} {
		assert.Equal(t, v, DecodeBCD(EncodeBCD(v)), "value %v", v)
	}
}

func TestDecodeBCDStrict(t *testing.T) {
	b, err := ParseBits("000 1010 0000 0000 0000")
	require.NoError(t, err)
	_, err = DecodeBCDStrict(b)
	assert.ErrorIs(t, err, ErrDigitRange)

	var raw BCD
	raw[4] = 2
	_, err = DecodeBCDStrict(raw)
	assert.ErrorIs(t, err, ErrBitValue)

	v, err := DecodeBCDStrict(EncodeBCD(4321))
	require.NoError(t, err)
	assert.Equal(t, 4321.0, v)
}

func TestEncodeBCDStrict(t *testing.T) {
	_, err := EncodeBCDStrict(80000)
	assert.ErrorIs(t, err, ErrValueRange)
	_, err = EncodeBCDStrict(-1)
	assert.ErrorIs(t, err, ErrValueRange)
	_, err = EncodeBCDStrict(math.Inf(1))
	assert.ErrorIs(t, err, ErrNonFiniteBCD)

	b, err := EncodeBCDStrict(79999)
	require.NoError(t, err)
	assert.Equal(t, 79999.0, DecodeBCD(b))
}

func TestParseBitsRejects(t *testing.T) {
	_, err := ParseBits("0101")
	assert.ErrorIs(t, err, ErrFieldWidth)
	_, err = ParseBits("000 0000 0000 0000 000x")
	assert.ErrorIs(t, err, ErrBitValue)
}

func TestFromSlice(t *testing.T) {
	_, err := FromSlice(make([]uint8, 18))
	assert.ErrorIs(t, err, ErrFieldWidth)

	bits := make([]uint8, BCDBits)
	bits[18] = 1
	b, err := FromSlice(bits)
	require.NoError(t, err)
	assert.Equal(t, 1.0, DecodeBCD(b))
}
