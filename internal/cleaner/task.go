package cleaner

import "time"

// Timestamp is a wall-clock instant stored as a seconds/nanos pair so that
// persisted snapshots stay readable across restarts and versions.
type Timestamp struct {
	Secs  uint64 `json:"secs"`
	Nanos uint32 `json:"nanos"`
}

// Now returns the current time as a Timestamp.
func Now() Timestamp {
	return At(time.Now())
}

// At converts a time.Time to a Timestamp. Times before the Unix epoch
// collapse to the epoch.
func At(t time.Time) Timestamp {
	if t.Before(time.Unix(0, 0)) {
		return Timestamp{}
	}
	return Timestamp{
		Secs:  uint64(t.Unix()),
		Nanos: uint32(t.Nanosecond()),
	}
}

// Time converts the Timestamp back to a time.Time.
func (ts Timestamp) Time() time.Time {
	return time.Unix(int64(ts.Secs), int64(ts.Nanos))
}

// Task is one scheduled recurring cleanup for a channel.
// Interval serializes as nanoseconds.
type Task struct {
	Interval time.Duration `json:"interval"`
	LastRun  Timestamp     `json:"last_run"`
}

// Due reports whether the time since the last run has reached the interval.
func (t Task) Due(now time.Time) bool {
	return now.Sub(t.LastRun.Time()) >= t.Interval
}
