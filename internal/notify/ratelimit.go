package notify

import (
	"sync"
	"time"
)

// RateLimiter is a fixed-window limiter: at most max calls per window.
// The counter resets once the elapsed time since the window start
// exceeds the window length.
type RateLimiter struct {
	mu          sync.Mutex
	max         int
	window      time.Duration
	count       int
	windowStart time.Time

	now func() time.Time // stubbed in tests
}

// NewRateLimiter creates a limiter allowing max calls per window.
func NewRateLimiter(max int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		max:         max,
		window:      window,
		windowStart: time.Now(),
		now:         time.Now,
	}
}

// Allow consumes one slot if the current window has capacity.
func (l *RateLimiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.windowStart) > l.window {
		l.windowStart = now
		l.count = 0
	}
	if l.count >= l.max {
		return false
	}
	l.count++
	return true
}

// Remaining returns the unused capacity of the current window.
func (l *RateLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.now().Sub(l.windowStart) > l.window {
		return l.max
	}
	return l.max - l.count
}
