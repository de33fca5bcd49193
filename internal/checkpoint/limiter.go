package checkpoint

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter keeps one token bucket per attempt so a misbehaving page cannot
// flood the checkpoint table.
type Limiter struct {
	mu      sync.Mutex
	every   rate.Limit
	burst   int
	buckets map[string]*limiterEntry
	now     func() time.Time
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

const limiterIdleTTL = 10 * time.Minute

func NewLimiter(perSecond float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		every:   rate.Limit(perSecond),
		burst:   burst,
		buckets: map[string]*limiterEntry{},
		now:     time.Now,
	}
}

// Allow reports whether attemptID may write now. A nil Limiter allows all.
func (l *Limiter) Allow(attemptID string) bool {
	if l == nil || l.every <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	e, ok := l.buckets[attemptID]
	if !ok {
		if len(l.buckets) > 1024 {
			l.sweep(now)
		}
		e = &limiterEntry{lim: rate.NewLimiter(l.every, l.burst)}
		l.buckets[attemptID] = e
	}
	e.lastSeen = now
	return e.lim.AllowN(now, 1)
}

func (l *Limiter) sweep(now time.Time) {
	for k, e := range l.buckets {
		if now.Sub(e.lastSeen) > limiterIdleTTL {
			delete(l.buckets, k)
		}
	}
}
