package examtimer

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountdownExpiresOnce(t *testing.T) {
	var expired atomic.Int32
	var mu sync.Mutex
	var ticks []int
	tm := New(
		WithInterval(5*time.Millisecond),
		OnTick(func(left int) {
			mu.Lock()
			ticks = append(ticks, left)
			mu.Unlock()
		}),
		OnExpire(func() { expired.Add(1) }),
	)
	require.True(t, tm.Start(3))
	assert.False(t, tm.Start(100), "second start is a no-op")

	require.Eventually(t, func() bool { return expired.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), expired.Load())
	assert.Equal(t, 0, tm.Left())

	mu.Lock()
	assert.Equal(t, []int{2, 1, 0}, ticks)
	mu.Unlock()

	tm.Stop()
}

func TestStopPreventsExpiry(t *testing.T) {
	var expired atomic.Int32
	tm := New(WithInterval(time.Hour), OnExpire(func() { expired.Add(1) }))
	require.True(t, tm.Start(60))
	tm.Stop()
	tm.Stop()
	assert.Zero(t, expired.Load())
	assert.Equal(t, 60, tm.Left())
	assert.False(t, tm.Start(60), "a stopped timer does not restart")
}

func TestStartAtZeroExpiresImmediately(t *testing.T) {
	fired := make(chan struct{}, 2)
	tm := New(OnExpire(func() { fired <- struct{}{} }))
	require.True(t, tm.Start(0))
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("expiry did not fire")
	}
	tm.Stop()
	assert.Len(t, fired, 0)
}

func TestStopBeforeStart(t *testing.T) {
	tm := New()
	tm.Stop()
	assert.False(t, tm.Started())
}
