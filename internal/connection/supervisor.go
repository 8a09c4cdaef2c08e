// Package connection keeps one gateway session alive, restarting it with
// exponential backoff and serving reconnect/shutdown commands.
package connection

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"eule/pkg/logx"
)

// State is the observable phase of the supervised connection.
type State int32

const (
	StateDisconnected State = iota
	StateReconnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateReconnecting:
		return "reconnecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Command steers a running supervisor from outside.
type Command int

const (
	// CommandReconnect drops the current session and dials again immediately.
	CommandReconnect Command = iota
	// CommandShutdown stops the supervisor cleanly.
	CommandShutdown
)

// Session is the connection the supervisor owns. Connect establishes it;
// Run blocks until the session drops or ctx is canceled.
type Session interface {
	Connect(ctx context.Context) error
	Run(ctx context.Context) error
}

// Config tunes the restart backoff.
type Config struct {
	BackoffFloor   time.Duration // first retry delay (default 1s)
	BackoffCeiling time.Duration // delay cap (default 5m)
}

func (c *Config) applyDefaults() {
	if c.BackoffFloor <= 0 {
		c.BackoffFloor = time.Second
	}
	if c.BackoffCeiling <= 0 {
		c.BackoffCeiling = 5 * time.Minute
	}
}

// Supervisor restarts a Session until told to stop. One Run loop owns the
// session; callers interact through Commands and State.
type Supervisor struct {
	log     logx.Logger
	cfg     Config
	session Session

	state    atomic.Int32
	commands chan Command
}

func New(cfg Config, session Session, log logx.Logger) *Supervisor {
	cfg.applyDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Supervisor{
		log:      log,
		cfg:      cfg,
		session:  session,
		commands: make(chan Command, 4),
	}
}

// Commands returns the channel used to steer the supervisor. Closing it has
// the same effect as CommandShutdown.
func (s *Supervisor) Commands() chan<- Command { return s.commands }

// State reports the current connection phase.
func (s *Supervisor) State() State { return State(s.state.Load()) }

// Run drives connect/run/backoff cycles until ctx is canceled or a shutdown
// command arrives. It always leaves the state disconnected.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.state.Store(int32(StateDisconnected))

	backoff := s.cfg.BackoffFloor
	for {
		// Commands take priority over dialing another attempt.
		select {
		case cmd, ok := <-s.commands:
			if !ok || cmd == CommandShutdown {
				return nil
			}
			if cmd == CommandReconnect {
				backoff = s.cfg.BackoffFloor
			}
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		s.state.Store(int32(StateReconnecting))
		if err := s.session.Connect(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Warn("connect failed",
				logx.Err(err),
				logx.Duration("retry_in", backoff),
			)
			if stop := s.sleep(ctx, backoff); stop {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			backoff = s.nextBackoff(backoff)
			continue
		}

		s.state.Store(int32(StateConnected))
		s.log.Info("connected")
		backoff = s.cfg.BackoffFloor

		runErr := s.runSession(ctx)
		switch {
		case runErr == errShutdown:
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		case runErr != nil:
			s.state.Store(int32(StateReconnecting))
			s.log.Warn("session dropped",
				logx.Err(runErr),
				logx.Duration("retry_in", backoff),
			)
			if stop := s.sleep(ctx, backoff); stop {
				return nil
			}
			backoff = s.nextBackoff(backoff)
		default:
			// Reconnect requested; dial again right away.
		}
	}
}

var errShutdown = errors.New("shutdown requested")

// runSession runs the session while watching for commands. A reconnect
// returns nil so the outer loop redials immediately; a shutdown returns
// errShutdown.
func (s *Supervisor) runSession(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.session.Run(runCtx) }()

	for {
		select {
		case err := <-done:
			return err
		case cmd, ok := <-s.commands:
			if !ok || cmd == CommandShutdown {
				cancel()
				<-done
				return errShutdown
			}
			// Reconnect: tear the session down and let Run redial.
			s.log.Info("reconnect requested")
			cancel()
			<-done
			return nil
		case <-ctx.Done():
			<-done
			return ctx.Err()
		}
	}
}

func (s *Supervisor) nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > s.cfg.BackoffCeiling {
		d = s.cfg.BackoffCeiling
	}
	return d
}

// sleep waits out a backoff delay, cutting it short on shutdown (true) or
// reconnect (false with the delay skipped).
func (s *Supervisor) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return false
	case cmd, ok := <-s.commands:
		return !ok || cmd == CommandShutdown
	case <-ctx.Done():
		return false
	}
}
