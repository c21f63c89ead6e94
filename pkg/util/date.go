package util

import (
	"strconv"
	"strings"
	"time"
)

// Epoch values above this are milliseconds; as seconds they would land
// past the year 5000.
const unixMilliCutoff = 1e11

// ParseTime accepts RFC 3339 (with or without fractional seconds) and
// positive unix epochs in seconds or milliseconds.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n <= 0 {
			return time.Time{}, false
		}
		return UnixAuto(n), true
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	return t, err == nil
}

// ParseTimeDefault returns def when s does not parse.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// UnixAuto reads ts as seconds or milliseconds by magnitude.
func UnixAuto(ts int64) time.Time {
	if ts > unixMilliCutoff {
		return time.UnixMilli(ts)
	}
	return time.Unix(ts, 0)
}
