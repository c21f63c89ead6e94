package arinc429

import (
	"fmt"
	"math/bits"
	"strconv"
)

// ReverseLabel mirrors the bit order of an 8-bit label: bit i moves to bit 7-i.
// Labels are transmitted LSB first, so this converts between wire order and
// the octal form used in label tables. Applying it twice is the identity.
func ReverseLabel(label uint8) uint8 {
	return bits.Reverse8(label)
}

// FormatOctal renders a label the way label tables print it, e.g. "312".
func FormatOctal(label uint8) string {
	return fmt.Sprintf("%03o", label)
}

// ParseOctal parses a three-digit octal label such as "203".
func ParseOctal(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 8, 8)
	if err != nil {
		return 0, fmt.Errorf("arinc429: invalid octal label %q: %w", s, err)
	}
	return uint8(v), nil
}
