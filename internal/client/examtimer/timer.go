// Package examtimer is the exam countdown. It ticks once per interval and
// fires its expiry callback exactly once, when the count reaches zero.
package examtimer

import (
	"sync"
	"time"
)

type Timer struct {
	interval time.Duration
	onTick   func(left int)
	onExpire func()

	mu      sync.Mutex
	started bool
	left    int
	stop    chan struct{}
	done    chan struct{}
}

type Option func(*Timer)

// WithInterval sets the tick length. One second unless changed.
func WithInterval(d time.Duration) Option { return func(t *Timer) { t.interval = d } }

// OnTick is called after every decrement with the seconds left.
func OnTick(fn func(left int)) Option { return func(t *Timer) { t.onTick = fn } }

func OnExpire(fn func()) Option { return func(t *Timer) { t.onExpire = fn } }

func New(opts ...Option) *Timer {
	t := &Timer{interval: time.Second}
	for _, o := range opts {
		o(t)
	}
	if t.interval <= 0 {
		t.interval = time.Second
	}
	return t
}

// Start begins counting down from remaining seconds. It reports false if
// the timer was already started; a timer never restarts.
func (t *Timer) Start(remaining int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return false
	}
	t.started = true
	if remaining < 0 {
		remaining = 0
	}
	t.left = remaining
	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	go t.run(t.stop, t.done)
	return true
}

// Left returns the seconds remaining.
func (t *Timer) Left() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.left
}

func (t *Timer) Started() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started
}

// Stop halts the countdown without firing the expiry callback. It waits
// for the timer goroutine to exit, so it must not be called from a
// callback.
func (t *Timer) Stop() {
	t.mu.Lock()
	stop, done := t.stop, t.done
	if stop != nil {
		select {
		case <-stop:
		default:
			close(stop)
		}
	}
	t.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (t *Timer) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	if t.Left() == 0 {
		t.expire()
		return
	}
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.mu.Lock()
			t.left--
			left := t.left
			t.mu.Unlock()
			if t.onTick != nil {
				t.onTick(left)
			}
			if left <= 0 {
				t.expire()
				return
			}
		}
	}
}

func (t *Timer) expire() {
	if t.onExpire != nil {
		t.onExpire()
	}
}
