package cleaner

import (
	"context"
	"time"

	"eule/internal/ratelimit"
	"eule/pkg/logx"
)

const (
	// fetchLimit bounds one run to the most recent messages.
	fetchLimit = 100
	// deleteChunk is the largest batch a single delete call accepts.
	deleteChunk = 100
)

// runCleanup deletes the most recent messages from one channel. Any API
// failure aborts the run without touching the job's last-run time, so the
// next tick retries it.
func runCleanup(mgr *Manager, session Session, limiter *ratelimit.Limiter, workspace, channel string, log logx.Logger) {
	ctx := context.Background()
	log = log.With(logx.String("channel", ObfuscateID(channel)))

	ids, err := session.ListRecentMessages(ctx, channel, fetchLimit)
	if err != nil {
		log.Error("fetching messages failed", logx.Err(err))
		return
	}
	if len(ids) == 0 {
		mgr.completeJob(ctx, workspace, channel, time.Now())
		return
	}

	deleted := 0
	for start := 0; start < len(ids); start += deleteChunk {
		end := start + deleteChunk
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		if !limiter.Check() {
			log.Warn("delete rate limit hit, backing off",
				logx.Duration("cooldown", mgr.cfg.Cooldown),
			)
			time.Sleep(mgr.cfg.Cooldown)
		}
		if err := session.DeleteMessages(ctx, channel, chunk); err != nil {
			log.Error("deleting messages failed",
				logx.Int("deleted", deleted),
				logx.Err(err),
			)
			return
		}
		deleted += len(chunk)
	}

	mgr.completeJob(ctx, workspace, channel, time.Now())
	log.Info("channel cleaned", logx.Int("deleted", deleted))
}

// CleanOnce runs a single cleanup outside the schedule, for on-demand
// commands. It shares the manager's rate limiter when the pool is running.
func (m *Manager) CleanOnce(ctx context.Context, session Session, channel string, limit int) (int, error) {
	if limit <= 0 || limit > fetchLimit {
		limit = fetchLimit
	}
	ids, err := session.ListRecentMessages(ctx, channel, limit)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	m.mu.Lock()
	pool := m.pool
	m.mu.Unlock()
	var limiter *ratelimit.Limiter
	if pool != nil {
		limiter = pool.limiter
	} else {
		limiter = ratelimit.New(m.cfg.Rate, m.cfg.RatePeriod)
	}

	deleted := 0
	for start := 0; start < len(ids); start += deleteChunk {
		end := start + deleteChunk
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]
		if !limiter.Check() {
			m.log.Warn("delete rate limit hit, backing off",
				logx.Duration("cooldown", m.cfg.Cooldown),
			)
			select {
			case <-time.After(m.cfg.Cooldown):
			case <-ctx.Done():
				return deleted, ctx.Err()
			}
		}
		if err := session.DeleteMessages(ctx, channel, chunk); err != nil {
			return deleted, err
		}
		deleted += len(chunk)
	}
	return deleted, nil
}
