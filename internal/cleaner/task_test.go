package cleaner

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTimestampRoundTrip(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 3, 14, 9, 26, 53, 589793238, time.UTC)
	ts := At(at)
	if got := ts.Time(); !got.Equal(at) {
		t.Fatalf("Time() = %v, want %v", got, at)
	}
}

func TestTimestampPreEpoch(t *testing.T) {
	t.Parallel()

	ts := At(time.Unix(0, 0).Add(-time.Hour))
	if ts.Secs != 0 || ts.Nanos != 0 {
		t.Fatalf("pre-epoch time = %+v, want zero", ts)
	}
}

func TestTaskDue(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name     string
		interval time.Duration
		elapsed  time.Duration
		want     bool
	}{
		{"not yet", time.Hour, 59 * time.Minute, false},
		{"exactly due", time.Hour, time.Hour, true},
		{"overdue", time.Hour, 2 * time.Hour, true},
		{"zero interval always due", 0, 0, true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			task := Task{Interval: tc.interval, LastRun: At(base)}
			if got := task.Due(base.Add(tc.elapsed)); got != tc.want {
				t.Fatalf("Due() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestTaskJSONShape(t *testing.T) {
	t.Parallel()

	task := Task{Interval: 90 * time.Minute, LastRun: Timestamp{Secs: 1748779200, Nanos: 42}}
	blob, err := json.Marshal(task)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"interval":5400000000000,"last_run":{"secs":1748779200,"nanos":42}}`
	if string(blob) != want {
		t.Fatalf("marshal = %s, want %s", blob, want)
	}

	var back Task
	if err := json.Unmarshal(blob, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != task {
		t.Fatalf("round trip = %+v, want %+v", back, task)
	}
}
