// Package timestamp converts between the representations of time used on the
// wire and in storage.
//
// Timeline values (entry start times, durations) travel as fractional
// milliseconds relative to a time origin, the way the web performance
// timeline reports them. Wall-clock values travel as int64 Unix milliseconds.
//
// Zero Value Semantics:
//   - A Unix millisecond value of 0 means "not set"
//   - FromUnixMs(0) returns the zero time.Time, and ToUnixMs of a zero
//     time.Time returns 0
//
// Usage Examples:
//
//	ms := timestamp.Millis(entry.Duration)        // 12.5
//	d := timestamp.FromMillis(12.5)               // 12.5ms
//	key := timestamp.Bucket(batch.FlushedAt)      // "2024/10/08/14"
package timestamp

import (
	"math"
	"time"
)

// Millis converts d to fractional milliseconds.
func Millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// FromMillis converts fractional milliseconds to a Duration, rounded to the
// nearest nanosecond. Values beyond the Duration range saturate.
func FromMillis(ms float64) time.Duration {
	ns := math.Round(ms * float64(time.Millisecond))
	switch {
	case math.IsNaN(ns):
		return 0
	case ns >= math.MaxInt64:
		return time.Duration(math.MaxInt64)
	case ns <= math.MinInt64:
		return time.Duration(math.MinInt64)
	}
	return time.Duration(ns)
}

// ToUnixMs converts t to Unix milliseconds. The zero time maps to 0.
func ToUnixMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromUnixMs converts Unix milliseconds to a UTC time. 0 maps to the zero time.
func FromUnixMs(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// Bucket returns the hour bucket of t as "yyyy/mm/dd/hh" in UTC. Object keys
// built on it sort chronologically and group by hour.
func Bucket(t time.Time) string {
	return t.UTC().Format("2006/01/02/15")
}
