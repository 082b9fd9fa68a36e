package telemetry

import "time"

// Clock supplies the current wall-clock time in milliseconds since the Unix
// epoch. Construction paths that need the current time take a Clock so tests
// can substitute a fixed one.
type Clock func() Timestamp

// SystemClock reads the system wall clock.
func SystemClock() Timestamp {
	return Timestamp(time.Now().UnixMilli())
}

// FixedClock returns a Clock that always reports ts.
func FixedClock(ts Timestamp) Clock {
	return func() Timestamp { return ts }
}
