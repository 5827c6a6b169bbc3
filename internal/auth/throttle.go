package auth

import (
	"sync"
	"time"
)

const (
	defaultMaxAttempts = 5
	defaultLockWindow  = 15 * time.Minute
)

type loginAttempt struct {
	count       int
	pending     int
	lastAttempt time.Time
}

// LoginThrottle counts failed logins per client key. A counter whose last
// attempt is older than the window reads as zero even before it is removed.
//
// Attempts still being verified hold a slot from Reserve, so a client never
// has more password checks in flight than failures it has left.
type LoginThrottle struct {
	mu          sync.Mutex
	attempts    map[string]*loginAttempt
	maxAttempts int
	window      time.Duration
	now         func() time.Time
}

func NewLoginThrottle(maxAttempts int, window time.Duration) *LoginThrottle {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if window <= 0 {
		window = defaultLockWindow
	}

	return &LoginThrottle{
		attempts:    make(map[string]*loginAttempt),
		maxAttempts: maxAttempts,
		window:      window,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// IsLocked reports whether key is locked out and, if so, how many whole
// seconds remain (at least 1).
func (t *LoginThrottle) IsLocked(key string) (bool, int) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	return t.lockedLocked(key, now)
}

// Reserve claims a verification slot for key. It fails when key is locked or
// when the failures already recorded plus the attempts in flight would reach
// the limit. Every successful Reserve must be paired with exactly one of
// RecordFailure, RecordSuccess or Release.
func (t *LoginThrottle) Reserve(key string) (bool, int) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if locked, retryAfter := t.lockedLocked(key, now); locked {
		return false, retryAfter
	}

	attempt := t.attemptLocked(key, now)
	if attempt.count+attempt.pending >= t.maxAttempts {
		return false, 1
	}
	attempt.pending++
	return true, 0
}

// Release returns a reserved slot without counting a failure.
func (t *LoginThrottle) Release(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	attempt, ok := t.attempts[key]
	if !ok {
		return
	}
	attempt.release()
	if attempt.pending == 0 && attempt.count == 0 {
		delete(t.attempts, key)
	}
}

// RecordFailure counts a failed attempt and reports the attempts left before
// lockout, whether key is now locked, and the retry delay when it is. A slot
// held from Reserve is released.
func (t *LoginThrottle) RecordFailure(key string) (remaining int, locked bool, retryAfter int) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	attempt := t.attemptLocked(key, now)
	attempt.release()
	attempt.count++
	attempt.lastAttempt = now

	remaining = t.maxAttempts - attempt.count
	if remaining < 0 {
		remaining = 0
	}
	locked, retryAfter = t.lockedLocked(key, now)
	return remaining, locked, retryAfter
}

// RecordSuccess clears the failure count for key and releases its slot.
// Other attempts still in flight keep theirs.
func (t *LoginThrottle) RecordSuccess(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	attempt, ok := t.attempts[key]
	if !ok {
		return
	}
	attempt.release()
	if attempt.pending == 0 {
		delete(t.attempts, key)
		return
	}
	attempt.count = 0
}

// Prune drops counters whose window has elapsed and returns how many were
// removed.
func (t *LoginThrottle) Prune() int {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for key, attempt := range t.attempts {
		if attempt.pending == 0 && now.Sub(attempt.lastAttempt) >= t.window {
			delete(t.attempts, key)
			removed++
		}
	}
	return removed
}

func (t *LoginThrottle) lockedLocked(key string, now time.Time) (bool, int) {
	attempt, ok := t.attempts[key]
	if !ok || attempt.count < t.maxAttempts {
		return false, 0
	}

	elapsed := now.Sub(attempt.lastAttempt)
	if elapsed >= t.window {
		return false, 0
	}

	remaining := t.window - elapsed
	seconds := int((remaining + time.Second - 1) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return true, seconds
}

// attemptLocked returns the counter for key, creating it and restarting an
// expired count.
func (t *LoginThrottle) attemptLocked(key string, now time.Time) *loginAttempt {
	attempt, ok := t.attempts[key]
	if !ok {
		attempt = &loginAttempt{}
		t.attempts[key] = attempt
	}
	if now.Sub(attempt.lastAttempt) >= t.window {
		attempt.count = 0
	}
	return attempt
}

func (a *loginAttempt) release() {
	if a.pending > 0 {
		a.pending--
	}
}
