package auth

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestThrottle(clock *fakeClock) *LoginThrottle {
	th := NewLoginThrottle(5, 15*time.Minute)
	th.now = clock.Now
	return th
}

func TestLoginThrottle_LocksAfterFiveFailures(t *testing.T) {
	clock := newFakeClock()
	th := newTestThrottle(clock)

	for i := 1; i <= 4; i++ {
		remaining, locked, _ := th.RecordFailure("203.0.113.9")
		assert.Equal(t, 5-i, remaining)
		assert.False(t, locked)
		isLocked, _ := th.IsLocked("203.0.113.9")
		assert.False(t, isLocked)
		clock.Advance(time.Second)
	}

	remaining, locked, retryAfter := th.RecordFailure("203.0.113.9")
	assert.Equal(t, 0, remaining)
	assert.True(t, locked)
	assert.Equal(t, 900, retryAfter)

	isLocked, retry := th.IsLocked("203.0.113.9")
	assert.True(t, isLocked)
	assert.Equal(t, 900, retry)

	isLocked, _ = th.IsLocked("198.51.100.1")
	assert.False(t, isLocked, "other clients are not affected")
}

func TestLoginThrottle_RetryAfterCountsDown(t *testing.T) {
	clock := newFakeClock()
	th := newTestThrottle(clock)
	for i := 0; i < 5; i++ {
		th.RecordFailure("k")
	}

	clock.Advance(10*time.Minute + 500*time.Millisecond)
	locked, retry := th.IsLocked("k")
	assert.True(t, locked)
	assert.Equal(t, 300, retry, "rounded up to whole seconds")

	clock.Advance(5*time.Minute - time.Second)
	locked, retry = th.IsLocked("k")
	assert.True(t, locked)
	assert.Equal(t, 1, retry)
}

func TestLoginThrottle_WindowElapsedUnlocksAndRestartsCount(t *testing.T) {
	clock := newFakeClock()
	th := newTestThrottle(clock)
	for i := 0; i < 5; i++ {
		th.RecordFailure("k")
	}

	clock.Advance(15 * time.Minute)
	locked, _ := th.IsLocked("k")
	assert.False(t, locked)

	remaining, locked, _ := th.RecordFailure("k")
	assert.False(t, locked)
	assert.Equal(t, 4, remaining, "next failure starts a fresh count of 1")
	assert.Equal(t, 1, th.attempts["k"].count)
}

func TestLoginThrottle_SuccessClearsCount(t *testing.T) {
	clock := newFakeClock()
	th := newTestThrottle(clock)
	for i := 0; i < 4; i++ {
		th.RecordFailure("k")
	}

	th.RecordSuccess("k")

	remaining, locked, _ := th.RecordFailure("k")
	assert.False(t, locked)
	assert.Equal(t, 4, remaining)
}

func TestLoginThrottle_Prune(t *testing.T) {
	clock := newFakeClock()
	th := newTestThrottle(clock)
	th.RecordFailure("old")
	clock.Advance(16 * time.Minute)
	th.RecordFailure("fresh")

	assert.Equal(t, 1, th.Prune())
	_, ok := th.attempts["old"]
	assert.False(t, ok)
	_, ok = th.attempts["fresh"]
	assert.True(t, ok)
}

func TestLoginThrottle_ConcurrentFailuresAreNotLost(t *testing.T) {
	th := NewLoginThrottle(1000, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			th.RecordFailure("k")
		}()
	}
	wg.Wait()

	assert.Equal(t, 200, th.attempts["k"].count)
}

func TestLoginThrottle_ReserveCountsInFlightAttempts(t *testing.T) {
	clock := newFakeClock()
	th := newTestThrottle(clock)
	th.RecordFailure("k")
	th.RecordFailure("k")

	for i := 0; i < 3; i++ {
		ok, _ := th.Reserve("k")
		require.True(t, ok, "slot %d", i)
	}
	ok, retryAfter := th.Reserve("k")
	assert.False(t, ok, "two failures and three in flight use up the budget")
	assert.Equal(t, 1, retryAfter)

	th.Release("k")
	ok, _ = th.Reserve("k")
	assert.True(t, ok, "a released slot can be claimed again")

	for i := 0; i < 3; i++ {
		th.RecordFailure("k")
	}
	ok, retryAfter = th.Reserve("k")
	assert.False(t, ok)
	assert.Equal(t, 900, retryAfter)
	assert.Zero(t, th.attempts["k"].pending)
}

func TestLoginThrottle_ReleaseWithoutFailuresForgetsKey(t *testing.T) {
	th := newTestThrottle(newFakeClock())

	ok, _ := th.Reserve("k")
	require.True(t, ok)
	th.Release("k")

	assert.Empty(t, th.attempts)
}

func TestLoginThrottle_SuccessKeepsOtherSlots(t *testing.T) {
	th := newTestThrottle(newFakeClock())
	th.RecordFailure("k")
	th.Reserve("k")
	th.Reserve("k")

	th.RecordSuccess("k")
	assert.Equal(t, 0, th.attempts["k"].count)
	assert.Equal(t, 1, th.attempts["k"].pending)

	th.Release("k")
	assert.Empty(t, th.attempts)
}

func TestLoginThrottle_PruneKeepsPendingCounters(t *testing.T) {
	clock := newFakeClock()
	th := newTestThrottle(clock)
	th.Reserve("k")
	clock.Advance(time.Hour)

	assert.Equal(t, 0, th.Prune())
	assert.Contains(t, th.attempts, "k")
}
