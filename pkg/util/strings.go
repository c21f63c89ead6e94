package util

import (
	"strconv"
	"strings"
)

// ParseIntDefault returns def when s is not a base-10 integer.
func ParseIntDefault(s string, def int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return v
	}
	return def
}

// SplitTrim splits a comma-separated list and drops blank items.
func SplitTrim(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
