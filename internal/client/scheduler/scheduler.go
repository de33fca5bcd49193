// Package scheduler pushes exam state to the server as checkpoints: often
// while the candidate is active, rarely when idle, and only when something
// changed since the last acknowledged send.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mind-engage/ielts-mock/internal/checkpoint"
)

type Config struct {
	ActiveInterval time.Duration
	IdleInterval   time.Duration
	// IdleAfter is how long without activity before IdleInterval applies.
	IdleAfter   time.Duration
	SendTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		ActiveInterval: 10 * time.Second,
		IdleInterval:   60 * time.Second,
		IdleAfter:      30 * time.Second,
		SendTimeout:    10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ActiveInterval <= 0 {
		c.ActiveInterval = d.ActiveInterval
	}
	if c.IdleInterval <= 0 {
		c.IdleInterval = d.IdleInterval
	}
	if c.IdleAfter <= 0 {
		c.IdleAfter = d.IdleAfter
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = d.SendTimeout
	}
	return c
}

// NextDelay is how long to wait before the next checkpoint.
func NextDelay(now, lastActivity time.Time, forced bool, cfg Config) time.Duration {
	if forced {
		return 0
	}
	if now.Sub(lastActivity) < cfg.IdleAfter {
		return cfg.ActiveInterval
	}
	return cfg.IdleInterval
}

// BuildPayload decides what to send given the current state and the last
// acknowledged one. send is false when nothing changed. A forced build
// always sends the full state.
func BuildPayload(current checkpoint.Snapshot, acked *checkpoint.Snapshot, forced bool) (payload checkpoint.Snapshot, send bool) {
	full := current.Clone()
	full.Delta = false
	if forced || acked == nil {
		return full, true
	}
	diff := checkpoint.DiffAnswers(acked.Answers, current.Answers)
	if len(diff) == 0 && checkpoint.SameMeta(*acked, current, true) {
		return checkpoint.Snapshot{}, false
	}
	full.Answers = diff
	full.Delta = true
	return full, true
}

// Sender delivers a checkpoint to the server.
type Sender interface {
	SaveCheckpoint(ctx context.Context, snap checkpoint.Snapshot) error
}

type forceReq struct {
	ctx  context.Context
	done chan error
}

// Scheduler runs one goroutine that owns the timer and the last
// acknowledged snapshot.
type Scheduler struct {
	cfg  Config
	send Sender
	log  *zap.Logger
	now  func() time.Time

	mu           sync.Mutex
	latest       *checkpoint.Snapshot
	lastActivity time.Time
	acked        *checkpoint.Snapshot

	poke   chan struct{}
	force  chan forceReq
	quit   chan struct{}
	done   chan struct{}
	closer sync.Once
}

func New(send Sender, cfg Config, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Scheduler{
		cfg:   cfg.withDefaults(),
		send:  send,
		log:   log,
		now:   time.Now,
		poke:  make(chan struct{}, 1),
		force: make(chan forceReq),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go s.run()
	return s
}

// Track records a state change.
func (s *Scheduler) Track(snap checkpoint.Snapshot) {
	snap = snap.Clone()
	s.mu.Lock()
	s.latest = &snap
	s.lastActivity = s.now()
	s.mu.Unlock()
	select {
	case s.poke <- struct{}{}:
	default:
	}
}

// Observe replaces the state without counting as activity. The countdown
// uses it so a ticking clock alone never keeps the scheduler active.
func (s *Scheduler) Observe(snap checkpoint.Snapshot) {
	snap = snap.Clone()
	s.mu.Lock()
	s.latest = &snap
	s.mu.Unlock()
}

// Force sends the full current state now, skipping the delay and the
// unchanged check. It returns the send error; nil when there is nothing to
// send or the scheduler is closed.
func (s *Scheduler) Force(ctx context.Context) error {
	req := forceReq{ctx: ctx, done: make(chan error, 1)}
	select {
	case s.force <- req:
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Acked returns the last snapshot the server accepted.
func (s *Scheduler) Acked() (checkpoint.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acked == nil {
		return checkpoint.Snapshot{}, false
	}
	return s.acked.Clone(), true
}

// Close stops the goroutine. Pending changes are not sent.
func (s *Scheduler) Close() {
	s.closer.Do(func() { close(s.quit) })
	<-s.done
}

func (s *Scheduler) run() {
	defer close(s.done)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	var deadline time.Time
	arm := func(d time.Duration) {
		at := s.now().Add(d)
		// activity may pull an idle deadline closer, never push one back
		if !deadline.IsZero() && !at.Before(deadline) {
			return
		}
		timer.Stop()
		timer.Reset(d)
		deadline = at
	}
	rearm := func() {
		s.mu.Lock()
		last := s.lastActivity
		s.mu.Unlock()
		deadline = time.Time{}
		arm(NextDelay(s.now(), last, false, s.cfg))
	}

	for {
		select {
		case <-s.quit:
			timer.Stop()
			return

		case <-s.poke:
			s.mu.Lock()
			last := s.lastActivity
			s.mu.Unlock()
			arm(NextDelay(s.now(), last, false, s.cfg))

		case <-timer.C:
			deadline = time.Time{}
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SendTimeout)
			_ = s.flush(ctx, false)
			cancel()
			rearm()

		case req := <-s.force:
			ctx, cancel := context.WithTimeout(req.ctx, s.cfg.SendTimeout)
			req.done <- s.flush(ctx, true)
			cancel()
			rearm()
		}
	}
}

// flush builds and sends one payload. Errors are logged. A failed send may
// still have reached the server, so it drops the acked snapshot and the
// next tick sends the full state.
func (s *Scheduler) flush(ctx context.Context, forced bool) error {
	s.mu.Lock()
	if s.latest == nil {
		s.mu.Unlock()
		return nil
	}
	current := s.latest.Clone()
	var acked *checkpoint.Snapshot
	if s.acked != nil {
		a := s.acked.Clone()
		acked = &a
	}
	s.mu.Unlock()

	payload, ok := BuildPayload(current, acked, forced)
	if !ok {
		return nil
	}
	if err := s.send.SaveCheckpoint(ctx, payload); err != nil {
		s.log.Warn("checkpoint failed",
			zap.String("attempt_id", current.AttemptID),
			zap.Bool("forced", forced),
			zap.Bool("delta", payload.Delta),
			zap.Error(err))
		s.mu.Lock()
		s.acked = nil
		s.mu.Unlock()
		return err
	}
	s.mu.Lock()
	s.acked = &current
	s.mu.Unlock()
	s.log.Debug("checkpoint sent",
		zap.String("attempt_id", current.AttemptID),
		zap.Bool("forced", forced),
		zap.Bool("delta", payload.Delta),
		zap.Int("answers", len(payload.Answers)))
	return nil
}
