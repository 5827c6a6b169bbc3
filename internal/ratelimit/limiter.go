package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Limiter is a per-client sliding-window request limiter for the /api
// surface. It is independent of the login throttle.
type Limiter struct {
	mu        sync.Mutex
	maxHits   int
	window    time.Duration
	hitByKey  map[string][]time.Time
	maxMemory int
	keyFunc   func(*http.Request) string
	now       func() time.Time
}

func New(maxHits int, window time.Duration, keyFunc func(*http.Request) string) *Limiter {
	if maxHits <= 0 {
		maxHits = 100
	}
	if window <= 0 {
		window = 15 * time.Minute
	}

	return &Limiter{
		maxHits:   maxHits,
		window:    window,
		hitByKey:  make(map[string][]time.Time),
		maxMemory: 5000,
		keyFunc:   keyFunc,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := l.keyFunc(r)

		allowed, remaining, retryAfter := l.allow(key, l.now())
		w.Header().Set("RateLimit-Limit", strconv.Itoa(l.maxHits))
		w.Header().Set("RateLimit-Remaining", strconv.Itoa(remaining))
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(wholeSeconds(retryAfter)))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"message": "Too many requests from this IP, please try again later.",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (l *Limiter) allow(key string, now time.Time) (bool, int, time.Duration) {
	threshold := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	hits := l.hitByKey[key]
	filtered := make([]time.Time, 0, len(hits)+1)
	for _, hit := range hits {
		if hit.After(threshold) {
			filtered = append(filtered, hit)
		}
	}

	if len(filtered) >= l.maxHits {
		retryAfter := filtered[0].Add(l.window).Sub(now)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		l.hitByKey[key] = filtered
		return false, 0, retryAfter
	}

	filtered = append(filtered, now)
	l.hitByKey[key] = filtered

	if len(l.hitByKey) > l.maxMemory {
		for k, value := range l.hitByKey {
			if len(value) == 0 || value[len(value)-1].Before(threshold) {
				delete(l.hitByKey, k)
			}
		}
	}

	return true, l.maxHits - len(filtered), 0
}

// wholeSeconds rounds d up so a client that waits the advertised time is
// never still limited.
func wholeSeconds(d time.Duration) int {
	return int((d + time.Second - 1) / time.Second)
}
