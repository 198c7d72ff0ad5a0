// Package clock wraps the monotonic high-resolution timestamp source §4.A
// requires, so call sites never have to reason about time.Time's combined
// wall/monotonic reading themselves.
package clock

import "time"

// Timestamp is an opaque monotonic reading, convertible to calendar time.
// Two Timestamps from the same process are only meaningfully comparable to
// each other (never across a process restart).
type Timestamp struct {
	t time.Time
}

// Now returns the current monotonic timestamp.
func Now() Timestamp {
	return Timestamp{t: time.Now()}
}

// InitThread is the per-thread timestamp subsystem calibration step called
// out by the lifecycle wrapper (§4.F step 2). time.Now() needs no per-thread
// state in Go, so this is a documented no-op kept for symmetry with that
// step rather than a functional requirement.
func InitThread() {}

// Since returns the duration elapsed since ts, using the monotonic reading.
func (ts Timestamp) Since() time.Duration {
	return time.Since(ts.t)
}

// Sub returns the duration between two timestamps taken on the same
// process (ts - other).
func (ts Timestamp) Sub(other Timestamp) time.Duration {
	return ts.t.Sub(other.t)
}

// Wall converts the timestamp to (seconds-since-epoch, nanoseconds),
// matching §4.A's "a separate conversion yields (seconds_since_epoch,
// nanoseconds)".
func (ts Timestamp) Wall() (seconds int64, nanos int32) {
	return ts.t.Unix(), int32(ts.t.Nanosecond())
}

// Format renders ts at the requested granularity for log output.
func (ts Timestamp) Format(g Granularity) string {
	switch g {
	case Nanosecond:
		return ts.t.Format("2006-01-02T15:04:05.000000000Z07:00")
	case Microsecond:
		return ts.t.Format("2006-01-02T15:04:05.000000Z07:00")
	case Millisecond:
		return ts.t.Format("2006-01-02T15:04:05.000Z07:00")
	case Centisecond:
		return ts.t.Format("2006-01-02T15:04:05.00Z07:00")
	case Decisecond:
		return ts.t.Format("2006-01-02T15:04:05.0Z07:00")
	default:
		return ts.t.Format("2006-01-02T15:04:05Z07:00")
	}
}

// Granularity is the timestamp resolution selected by the
// logger.timestamp_granularity configuration key.
type Granularity uint8

const (
	Second Granularity = iota
	Decisecond
	Centisecond
	Millisecond
	Microsecond
	Nanosecond
)

// ParseGranularity maps a configuration string to a Granularity, defaulting
// to Millisecond for an unrecognized value.
func ParseGranularity(s string) Granularity {
	switch s {
	case "nanosecond":
		return Nanosecond
	case "microsecond":
		return Microsecond
	case "millisecond":
		return Millisecond
	case "centisecond":
		return Centisecond
	case "decisecond":
		return Decisecond
	case "second":
		return Second
	default:
		return Millisecond
	}
}
