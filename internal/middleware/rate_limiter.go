package middleware

import (
	"context"
	"sync"
	"time"
)

// RateLimiter controls how frequently a caller may perform an action.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type visitor struct {
	hits     []time.Time
	lastSeen time.Time
}

// windowLimiter keeps a sliding-window log of request times per key
// (typically a client address).
type windowLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    int
	window   time.Duration
	now      func() time.Time
	lastGC   time.Time
}

// NewWindowLimiter allows up to requests events per key in any window-long
// interval. Keys idle for a full window are forgotten.
func NewWindowLimiter(requests int, window time.Duration) RateLimiter {
	if requests <= 0 {
		requests = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &windowLimiter{
		visitors: make(map[string]*visitor),
		limit:    requests,
		window:   window,
		now:      time.Now,
	}
}

func (l *windowLimiter) Allow(_ context.Context, key string) (bool, error) {
	if key == "" {
		key = "unknown"
	}

	now := l.now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.gcLocked(now, cutoff)

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{}
		l.visitors[key] = v
	}
	v.lastSeen = now

	keep := 0
	for keep < len(v.hits) && !v.hits[keep].After(cutoff) {
		keep++
	}
	v.hits = v.hits[keep:]

	if len(v.hits) >= l.limit {
		return false, nil
	}
	v.hits = append(v.hits, now)
	return true, nil
}

// gcLocked sweeps idle visitors at most once per window.
func (l *windowLimiter) gcLocked(now, cutoff time.Time) {
	if now.Sub(l.lastGC) < l.window {
		return
	}
	l.lastGC = now
	for key, v := range l.visitors {
		if !v.lastSeen.After(cutoff) {
			delete(l.visitors, key)
		}
	}
}

// WithNowFunc allows tests to override the time source.
func (l *windowLimiter) WithNowFunc(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}
