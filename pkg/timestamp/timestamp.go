// Package timestamp handles the epoch-millisecond instants carried by run
// histories and bus messages. Event times travel as int64 milliseconds
// since the Unix epoch so histories serialize compactly and compare
// without timezone handling. A value of 0 means "not recorded".
package timestamp

import "time"

// Now returns the current instant as Unix milliseconds.
func Now() int64 {
	return time.Now().UnixMilli()
}

// ToUnixMs converts a time.Time, mapping the zero time to 0.
func ToUnixMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// ToTime converts Unix milliseconds back to a time.Time. 0 yields the
// zero time.
func ToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Format renders an instant as RFC3339 UTC for display. Unrecorded
// instants render as the empty string.
func Format(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

// Since reports how long ago the instant was, 0 for unrecorded ones.
func Since(ms int64) time.Duration {
	if ms == 0 {
		return 0
	}
	return time.Since(time.UnixMilli(ms))
}
