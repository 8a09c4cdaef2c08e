package cleaner

import (
	"sync"

	"eule/internal/ratelimit"
	"eule/pkg/logx"
)

type job struct {
	workspace string
	channel   string
}

// Pool runs cleanup jobs on a fixed set of workers fed from a bounded queue.
// Submission never blocks; a full queue drops the job and the next due tick
// picks it up again.
type Pool struct {
	log     logx.Logger
	queue   chan job
	wg      sync.WaitGroup
	workers int

	mu     sync.Mutex
	closed bool

	session Session
	mgr     *Manager
	limiter *ratelimit.Limiter
}

func newPool(cfg Config, session Session, mgr *Manager, log logx.Logger) *Pool {
	p := &Pool{
		log:     log,
		queue:   make(chan job, cfg.QueueSize),
		workers: cfg.Workers,
		session: session,
		mgr:     mgr,
		limiter: ratelimit.New(cfg.Rate, cfg.RatePeriod),
	}
	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

// QueueJob submits a job without blocking. Returns false when the queue is
// full or the pool is shut down.
func (p *Pool) QueueJob(workspace, channel string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.queue <- job{workspace: workspace, channel: channel}:
		return true
	default:
		p.log.Warn("cleanup queue full, dropping job",
			logx.String("channel", ObfuscateID(channel)),
		)
		return false
	}
}

// Shutdown stops accepting work, finishes everything already queued, and
// waits for the workers to exit.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.wg.Wait()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	p.wg.Wait()
}

// WorkerCount reports the pool size.
func (p *Pool) WorkerCount() int { return p.workers }

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	log := p.log.With(logx.Int("worker", id))
	for j := range p.queue {
		runCleanup(p.mgr, p.session, p.limiter, j.workspace, j.channel, log)
	}
}
