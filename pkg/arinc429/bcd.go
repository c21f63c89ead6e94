// Package arinc429 packs and unpacks the bit-level fields of ARINC 429 words
// that feed the trend classifier.
package arinc429

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// BCDBits is the width of the BCD data field.
const BCDBits = 19

// MaxBCDValue is the largest value EncodeBCD accepts before clamping.
const MaxBCDValue = 99999

// MaxEncodableValue is the largest value whose leading digit fits the
// 3-bit first character.
const MaxEncodableValue = 79999

var (
	ErrBitValue     = errors.New("arinc429: bit must be 0 or 1")
	ErrDigitRange   = errors.New("arinc429: bcd digit out of range")
	ErrFieldWidth   = errors.New("arinc429: bcd field must hold 19 bits")
	ErrValueRange   = errors.New("arinc429: value outside encodable range")
	ErrNonFiniteBCD = errors.New("arinc429: value is not finite")
)

// BCD is the 19-bit data field, most significant bit at index 0.
type BCD [BCDBits]uint8

// digit widths, most significant character first
var groups = [5]int{3, 4, 4, 4, 4}

// Digits splits the field into its five characters, most significant first.
// Only the low bit of every element is used.
func (b BCD) Digits() [5]int {
	var out [5]int
	pos := 0
	for g, width := range groups {
		d := 0
		for i := 0; i < width; i++ {
			d = d<<1 | int(b[pos]&1)
			pos++
		}
		out[g] = d
	}
	return out
}

// DecodeBCD converts the field into d5 + 10·d4 + 100·d3 + 1000·d2 + 10000·d1.
// Characters above 9 are not rejected; use DecodeBCDStrict for that.
func DecodeBCD(b BCD) float64 {
	d := b.Digits()
	return float64(d[4] + 10*d[3] + 100*d[2] + 1000*d[1] + 10000*d[0])
}

// DecodeBCDStrict decodes the field, rejecting non-binary bits and
// characters that are not decimal digits.
func DecodeBCDStrict(b BCD) (float64, error) {
	for i, bit := range b {
		if bit > 1 {
			return 0, fmt.Errorf("%w: bit %d is %d", ErrBitValue, i, bit)
		}
	}
	for i, d := range b.Digits() {
		if d > 9 {
			return 0, fmt.Errorf("%w: character %d is %d", ErrDigitRange, i+1, d)
		}
	}
	return DecodeBCD(b), nil
}

// EncodeBCD clamps v to [0, 99999], truncates it and writes its five decimal
// digits into a zeroed field. The first character keeps only its low three
// bits, so values of 80000 and above wrap on that digit.
func EncodeBCD(v float64) BCD {
	var out BCD
	if math.IsNaN(v) {
		return out
	}
	v = math.Max(0, math.Min(v, MaxBCDValue))
	n := int(v)
	digits := [5]int{
		n / 10000 % 10,
		n / 1000 % 10,
		n / 100 % 10,
		n / 10 % 10,
		n % 10,
	}
	pos := 0
	for g, width := range groups {
		for i := width - 1; i >= 0; i-- {
			out[pos] = uint8(digits[g] >> i & 1)
			pos++
		}
	}
	return out
}

// EncodeBCDStrict encodes v only if it is finite and within [0, 79999].
func EncodeBCDStrict(v float64) (BCD, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return BCD{}, ErrNonFiniteBCD
	}
	if v < 0 || v > MaxEncodableValue {
		return BCD{}, fmt.Errorf("%w: %v", ErrValueRange, v)
	}
	return EncodeBCD(v), nil
}

// FormatBits renders the field as a string of 0 and 1, MSB first.
func FormatBits(b BCD) string {
	var sb strings.Builder
	sb.Grow(BCDBits)
	for _, bit := range b {
		sb.WriteByte('0' + bit&1)
	}
	return sb.String()
}

// ParseBits reads a 19-character string of 0 and 1, MSB first.
// Spaces and underscores are ignored so grouped input like "001 0011 ..." works.
func ParseBits(s string) (BCD, error) {
	var out BCD
	clean := strings.NewReplacer(" ", "", "_", "").Replace(s)
	if len(clean) != BCDBits {
		return out, fmt.Errorf("%w: got %d", ErrFieldWidth, len(clean))
	}
	for i := 0; i < BCDBits; i++ {
		switch clean[i] {
		case '0':
		case '1':
			out[i] = 1
		default:
			return out, fmt.Errorf("%w: %q at %d", ErrBitValue, clean[i], i)
		}
	}
	return out, nil
}

// FromSlice copies exactly 19 bit values into a BCD field.
func FromSlice(bits []uint8) (BCD, error) {
	var out BCD
	if len(bits) != BCDBits {
		return out, fmt.Errorf("%w: got %d", ErrFieldWidth, len(bits))
	}
	copy(out[:], bits)
	return out, nil
}
