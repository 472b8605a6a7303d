// internal/protocol/timestamp.go
package protocol

import "time"

// Timestamp is a point in time stored as whole seconds since the Unix epoch.
// It is always interpreted as UTC and never carries sub-second precision.
type Timestamp int64

// FromTime truncates t to whole seconds.
func FromTime(t time.Time) Timestamp {
	return Timestamp(t.Unix())
}

// FromEpochSeconds wraps raw epoch seconds.
func FromEpochSeconds(s int64) Timestamp {
	return Timestamp(s)
}

// Seconds returns the raw epoch seconds.
func (ts Timestamp) Seconds() int64 {
	return int64(ts)
}

// Time returns the calendar time in UTC.
func (ts Timestamp) Time() time.Time {
	return time.Unix(int64(ts), 0).UTC()
}

func (ts Timestamp) String() string {
	return ts.Time().Format(time.RFC3339)
}
