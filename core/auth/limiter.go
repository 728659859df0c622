package auth

import (
	"sync"
	"time"
)

// IPLimiter blocks an address after too many failed logins within a sliding window.
type IPLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	block   time.Duration
	now     func() time.Time
	entries map[string]*ipEntry
}

type ipEntry struct {
	failures     []time.Time
	blockedUntil time.Time
}

// NewIPLimiter blocks an address for `block` once it failed `max` times within `window`.
func NewIPLimiter(max int, window, block time.Duration, clock func() time.Time) *IPLimiter {
	if max <= 0 {
		max = 5
	}
	if window <= 0 {
		window = 5 * time.Minute
	}
	if block <= 0 {
		block = 15 * time.Minute
	}
	if clock == nil {
		clock = time.Now
	}
	return &IPLimiter{max: max, window: window, block: block, now: clock, entries: make(map[string]*ipEntry)}
}

// Blocked reports whether ip is blocked, and for how long.
func (l *IPLimiter) Blocked(ip string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[ip]
	if !ok {
		return false, 0
	}
	now := l.now()
	if now.Before(e.blockedUntil) {
		return true, e.blockedUntil.Sub(now)
	}
	return false, 0
}

// Fail counts a failed attempt from ip and returns true when it got ip blocked.
func (l *IPLimiter) Fail(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[ip]
	if !ok {
		e = &ipEntry{}
		l.entries[ip] = e
	}
	e.failures = append(recent(e.failures, now.Add(-l.window)), now)
	if len(e.failures) >= l.max {
		e.blockedUntil = now.Add(l.block)
		e.failures = nil
		return true
	}
	return false
}

// Reset forgets ip, after a successful login.
func (l *IPLimiter) Reset(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, ip)
}

// Cleanup drops the entries that neither block nor count anymore.
func (l *IPLimiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for ip, e := range l.entries {
		e.failures = recent(e.failures, now.Add(-l.window))
		if len(e.failures) == 0 && !now.Before(e.blockedUntil) {
			delete(l.entries, ip)
		}
	}
}

// Len is the number of tracked addresses.
func (l *IPLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func recent(ts []time.Time, since time.Time) []time.Time {
	i := 0
	for ; i < len(ts); i++ {
		if ts[i].After(since) {
			break
		}
	}
	return ts[i:]
}
