package cleaner

import (
	"testing"
	"time"
)

func TestRegistryAddOverwrites(t *testing.T) {
	t.Parallel()

	r := newRegistry()
	r.add("ws", "ch", Task{Interval: time.Hour})
	r.add("ws", "ch", Task{Interval: 2 * time.Hour})

	got, ok := r.get("ws", "ch")
	if !ok {
		t.Fatal("job missing after add")
	}
	if got.Interval != 2*time.Hour {
		t.Fatalf("interval = %v, want %v", got.Interval, 2*time.Hour)
	}
	if n := r.count("ws"); n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}
}

func TestRegistryRemove(t *testing.T) {
	t.Parallel()

	r := newRegistry()
	r.add("ws", "a", Task{Interval: time.Minute})

	if !r.remove("ws", "a") {
		t.Fatal("remove existing = false")
	}
	if r.remove("ws", "a") {
		t.Fatal("remove absent = true")
	}
	if r.remove("other", "a") {
		t.Fatal("remove from unknown workspace = true")
	}
	if n := r.count("ws"); n != 0 {
		t.Fatalf("count after remove = %d", n)
	}
}

func TestRegistryListSorted(t *testing.T) {
	t.Parallel()

	r := newRegistry()
	r.add("ws", "20", Task{Interval: time.Minute})
	r.add("ws", "10", Task{Interval: time.Hour})
	r.add("elsewhere", "99", Task{Interval: time.Hour})

	got := r.list("ws")
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Channel != "10" || got[1].Channel != "20" {
		t.Fatalf("order = %q, %q", got[0].Channel, got[1].Channel)
	}
}

func TestRegistryDue(t *testing.T) {
	t.Parallel()

	now := time.Now()
	r := newRegistry()
	r.add("ws", "overdue", Task{Interval: time.Minute, LastRun: At(now.Add(-2 * time.Minute))})
	r.add("ws", "fresh", Task{Interval: time.Hour, LastRun: At(now)})

	refs := r.due(now)
	if len(refs) != 1 {
		t.Fatalf("due = %d jobs, want 1", len(refs))
	}
	if refs[0].channel != "overdue" {
		t.Fatalf("due channel = %q", refs[0].channel)
	}
}

func TestRegistryTouchMissingJob(t *testing.T) {
	t.Parallel()

	r := newRegistry()
	r.touch("ws", "gone", Now())
	if n := r.count("ws"); n != 0 {
		t.Fatalf("touch resurrected a job, count = %d", n)
	}
}

func TestRegistrySnapshotIsCopy(t *testing.T) {
	t.Parallel()

	r := newRegistry()
	r.add("ws", "ch", Task{Interval: time.Minute})

	snap := r.snapshot()
	snap["ws"]["ch"] = Task{Interval: time.Hour}

	got, _ := r.get("ws", "ch")
	if got.Interval != time.Minute {
		t.Fatalf("mutating snapshot changed registry: %v", got.Interval)
	}
}
