package cleaner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"eule/internal/store"
	"eule/pkg/logx"
)

// snapshotKey is the store key holding the serialized job table.
const snapshotKey = "cleanup_tasks"

var (
	ErrInvalidInterval = errors.New("cleaner: interval must not be negative")
	ErrInvalidTimeUnit = errors.New("cleaner: unrecognized time unit")
)

// Session is the slice of the messaging API a cleanup run needs.
type Session interface {
	ListRecentMessages(ctx context.Context, channelID string, limit int) ([]string, error)
	DeleteMessages(ctx context.Context, channelID string, ids []string) error
}

// Config controls scheduling and execution. Zero fields take defaults.
type Config struct {
	TickPeriod time.Duration // due-job scan period (default 60s)
	Workers    int           // worker pool size (default 4)
	QueueSize  int           // job queue capacity (default 100)

	// Rate limiting across all workers.
	Rate       int           // deletions admitted per RatePeriod (default 5)
	RatePeriod time.Duration // default 10s
	Cooldown   time.Duration // sleep before proceeding past a denied check (default 2s)
}

func (c *Config) applyDefaults() {
	if c.TickPeriod <= 0 {
		c.TickPeriod = 60 * time.Second
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 100
	}
	if c.Rate <= 0 {
		c.Rate = 5
	}
	if c.RatePeriod <= 0 {
		c.RatePeriod = 10 * time.Second
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 2 * time.Second
	}
}

// Manager owns the job registry, checkpoints it to the store, and on every
// tick hands due jobs to the worker pool.
type Manager struct {
	log logx.Logger
	cfg Config
	st  *store.Store

	reg *registry

	// saveMu serializes checkpoints so concurrent mutations can't interleave
	// a stale snapshot after a newer one.
	saveMu sync.Mutex

	mu   sync.Mutex // guards pool/cron start/stop
	pool *Pool
	cron *cron.Cron
}

// NewManager creates a manager backed by st. Call Load to restore persisted
// jobs and Start to begin ticking.
func NewManager(cfg Config, st *store.Store, log logx.Logger) *Manager {
	cfg.applyDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{
		log: log,
		cfg: cfg,
		st:  st,
		reg: newRegistry(),
	}
}

// AddJob schedules (or reschedules) a cleanup for one channel. An existing
// job for the same pair is overwritten. The registry is persisted before
// returning.
func (m *Manager) AddJob(ctx context.Context, workspace, channel string, interval time.Duration) error {
	if interval < 0 {
		return ErrInvalidInterval
	}
	m.reg.add(workspace, channel, Task{Interval: interval, LastRun: Now()})
	if err := m.Save(ctx); err != nil {
		return err
	}
	m.log.Info("cleanup job added",
		logx.String("workspace", ObfuscateID(workspace)),
		logx.String("channel", ObfuscateID(channel)),
		logx.Duration("interval", interval),
	)
	return nil
}

// RemoveJob deletes the job for (workspace, channel) and reports whether one
// existed. Removal is persisted before returning.
func (m *Manager) RemoveJob(ctx context.Context, workspace, channel string) (bool, error) {
	removed := m.reg.remove(workspace, channel)
	if !removed {
		return false, nil
	}
	if err := m.Save(ctx); err != nil {
		return true, err
	}
	m.log.Info("cleanup job removed",
		logx.String("workspace", ObfuscateID(workspace)),
		logx.String("channel", ObfuscateID(channel)),
	)
	return true, nil
}

// ListJobs returns every job in the workspace, ordered by channel.
func (m *Manager) ListJobs(workspace string) []JobInfo {
	return m.reg.list(workspace)
}

// JobCount returns the number of jobs in the workspace.
func (m *Manager) JobCount(workspace string) int {
	return m.reg.count(workspace)
}

// Save checkpoints the whole registry to the store as one snapshot blob.
func (m *Manager) Save(ctx context.Context) error {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	snap := m.reg.snapshot()
	blob, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("cleaner: encode snapshot: %w", err)
	}
	return m.st.Set(ctx, snapshotKey, blob)
}

// Load replaces the in-memory registry wholesale from the last snapshot.
// A store with no snapshot leaves the registry empty; that is not an error.
func (m *Manager) Load(ctx context.Context) error {
	blob, ok, err := m.st.Get(ctx, snapshotKey)
	if err != nil {
		return err
	}
	if !ok {
		m.log.Info("no saved cleanup jobs")
		return nil
	}
	var snap map[string]map[string]Task
	if err := json.Unmarshal(blob, &snap); err != nil {
		return fmt.Errorf("cleaner: decode snapshot: %w", err)
	}
	m.reg.replace(snap)

	n := 0
	for _, ws := range snap {
		n += len(ws)
	}
	m.log.Info("cleanup jobs loaded", logx.Int("jobs", n))
	return nil
}

// Start constructs the worker pool against the given session and begins the
// periodic due-job scan. Calling Start on a started manager is a no-op.
func (m *Manager) Start(session Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cron != nil {
		return nil
	}

	m.pool = newPool(m.cfg, session, m, m.log)

	c := cron.New()
	expr := fmt.Sprintf("@every %s", m.cfg.TickPeriod)
	if _, err := c.AddFunc(expr, func() { m.tick(time.Now()) }); err != nil {
		m.pool.Shutdown()
		m.pool = nil
		return fmt.Errorf("cleaner: register tick: %w", err)
	}
	c.Start()
	m.cron = c

	m.log.Info("cleanup scheduler started",
		logx.Duration("tick", m.cfg.TickPeriod),
		logx.Int("workers", m.cfg.Workers),
	)
	return nil
}

// tick scans the registry once and enqueues every due job. Due detection
// does not advance LastRun; only a completed run does.
func (m *Manager) tick(now time.Time) {
	m.mu.Lock()
	pool := m.pool
	m.mu.Unlock()
	if pool == nil {
		return
	}
	for _, ref := range m.reg.due(now) {
		m.log.Info("queueing cleanup",
			logx.String("workspace", ObfuscateID(ref.workspace)),
			logx.String("channel", ObfuscateID(ref.channel)),
		)
		pool.QueueJob(ref.workspace, ref.channel)
	}
}

// completeJob records a successful run and checkpoints the registry.
func (m *Manager) completeJob(ctx context.Context, workspace, channel string, finished time.Time) {
	m.reg.touch(workspace, channel, At(finished))
	if err := m.Save(ctx); err != nil {
		m.log.Error("checkpoint after cleanup failed", logx.Err(err))
	}
}

// Shutdown stops the tick and drains the worker pool. Jobs already queued
// are finished before it returns.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	c := m.cron
	pool := m.pool
	m.cron = nil
	m.pool = nil
	m.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
			// best-effort
		}
	}
	if pool != nil {
		pool.Shutdown()
	}
	m.log.Info("cleanup scheduler stopped")
}

// WorkerCount reports the size of the running pool (0 when stopped).
func (m *Manager) WorkerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pool == nil {
		return 0
	}
	return m.pool.WorkerCount()
}

// ParseInterval turns a value/unit pair from the command surface into a
// duration. Unit must be minutes, hours, or days (or a prefix alias).
func ParseInterval(value int64, unit string) (time.Duration, error) {
	if value <= 0 {
		return 0, ErrInvalidInterval
	}
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "minutes", "minute", "min", "m":
		return time.Duration(value) * time.Minute, nil
	case "hours", "hour", "h":
		return time.Duration(value) * time.Hour, nil
	case "days", "day", "d":
		return time.Duration(value) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeUnit, unit)
	}
}

// ObfuscateID renders a workspace/channel ID for logging without exposing
// the raw snowflake.
func ObfuscateID(id string) string {
	if n, err := strconv.ParseUint(id, 10, 64); err == nil {
		return strconv.FormatUint(n, 16)
	}
	return id
}
