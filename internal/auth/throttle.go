package auth

import (
	"sync"
	"time"
)

// LoginThrottle tracks failed login attempts per client-IP/username pair
// inside a fixed window. Counters live in memory only; a restart resets
// the window, which is acceptable for a single authoritative instance.
type LoginThrottle struct {
	max     int
	window  time.Duration
	nowFunc func() time.Time

	mu       sync.Mutex
	failures map[string][]time.Time
}

func NewLoginThrottle(max int, window time.Duration) *LoginThrottle {
	return &LoginThrottle{
		max:      max,
		window:   window,
		nowFunc:  time.Now,
		failures: make(map[string][]time.Time),
	}
}

func (t *LoginThrottle) key(clientIP, username string) string {
	return clientIP + "|" + username
}

// Blocked reports whether the pair has reached the failure budget.
func (t *LoginThrottle) Blocked(clientIP, username string) bool {
	if t.max <= 0 {
		return false
	}
	now := t.nowFunc()

	t.mu.Lock()
	defer t.mu.Unlock()

	key := t.key(clientIP, username)
	kept := t.pruneLocked(key, now)
	return len(kept) >= t.max
}

func (t *LoginThrottle) RecordFailure(clientIP, username string) {
	now := t.nowFunc()

	t.mu.Lock()
	defer t.mu.Unlock()

	key := t.key(clientIP, username)
	t.failures[key] = append(t.pruneLocked(key, now), now)
}

func (t *LoginThrottle) Reset(clientIP, username string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.failures, t.key(clientIP, username))
}

func (t *LoginThrottle) pruneLocked(key string, now time.Time) []time.Time {
	cut := now.Add(-t.window)
	kept := t.failures[key][:0]
	for _, at := range t.failures[key] {
		if at.After(cut) {
			kept = append(kept, at)
		}
	}
	if len(kept) == 0 {
		delete(t.failures, key)
		return nil
	}
	t.failures[key] = kept
	return kept
}
