package cleaner

import (
	"sort"
	"sync"
	"time"
)

// JobInfo is the listing view of one scheduled job.
type JobInfo struct {
	Channel  string
	Interval time.Duration
}

// jobRef identifies a job across the queue boundary. Workers get a reference,
// never the Task itself, so registry mutations stay owned by the registry.
type jobRef struct {
	workspace string
	channel   string
}

// registry is the in-memory job table: workspace -> channel -> task.
// One reader/writer lock guards the whole structure; critical sections are
// snapshot-then-release and never span an API call.
type registry struct {
	mu    sync.RWMutex
	tasks map[string]map[string]Task
}

func newRegistry() *registry {
	return &registry{tasks: map[string]map[string]Task{}}
}

// add inserts or overwrites the job for (workspace, channel).
func (r *registry) add(workspace, channel string, t Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws := r.tasks[workspace]
	if ws == nil {
		ws = map[string]Task{}
		r.tasks[workspace] = ws
	}
	ws[channel] = t
}

// remove deletes the job and reports whether one existed.
func (r *registry) remove(workspace, channel string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws, ok := r.tasks[workspace]
	if !ok {
		return false
	}
	if _, ok := ws[channel]; !ok {
		return false
	}
	delete(ws, channel)
	if len(ws) == 0 {
		delete(r.tasks, workspace)
	}
	return true
}

func (r *registry) get(workspace, channel string) (Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[workspace][channel]
	return t, ok
}

// touch advances LastRun for an existing job; a job removed while its run
// was in flight is simply gone and stays gone.
func (r *registry) touch(workspace, channel string, at Timestamp) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws, ok := r.tasks[workspace]
	if !ok {
		return
	}
	t, ok := ws[channel]
	if !ok {
		return
	}
	t.LastRun = at
	ws[channel] = t
}

func (r *registry) list(workspace string) []JobInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ws := r.tasks[workspace]
	out := make([]JobInfo, 0, len(ws))
	for channel, t := range ws {
		out = append(out, JobInfo{Channel: channel, Interval: t.Interval})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out
}

func (r *registry) count(workspace string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks[workspace])
}

// due returns references to every job whose interval has elapsed.
func (r *registry) due(now time.Time) []jobRef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var refs []jobRef
	for workspace, ws := range r.tasks {
		for channel, t := range ws {
			if t.Due(now) {
				refs = append(refs, jobRef{workspace: workspace, channel: channel})
			}
		}
	}
	return refs
}

// snapshot deep-copies the table under the read lock so serialization can
// happen outside of it.
func (r *registry) snapshot() map[string]map[string]Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]map[string]Task, len(r.tasks))
	for workspace, ws := range r.tasks {
		cp := make(map[string]Task, len(ws))
		for channel, t := range ws {
			cp[channel] = t
		}
		out[workspace] = cp
	}
	return out
}

// replace swaps the whole table for a loaded snapshot.
func (r *registry) replace(tasks map[string]map[string]Task) {
	if tasks == nil {
		tasks = map[string]map[string]Task{}
	}
	r.mu.Lock()
	r.tasks = tasks
	r.mu.Unlock()
}
