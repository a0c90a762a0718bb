package util

import "strings"

// Ptr returns a pointer to the given value.
// This is a generic helper for creating pointers to literals.
func Ptr[T any](v T) *T {
	return &v
}

// ClampFloat64 bounds x to the [lo, hi] interval.
func ClampFloat64(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// TailString returns the suffix of s holding at most max characters.
// Used for log retention, where the most recent content matters.
func TailString(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}

// TailLines returns the last n lines of s, preserving line breaks between
// them. A trailing newline does not count as an extra line.
func TailLines(s string, n int) string {
	if n <= 0 || s == "" {
		return ""
	}

	trimmed := strings.TrimSuffix(s, "\n")
	lines := strings.Split(trimmed, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
