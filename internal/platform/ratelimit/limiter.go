package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Decision reports whether a request fits in the current window.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter counts requests per key in fixed windows.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// MemoryLimiter is a process-local fixed-window limiter.
type MemoryLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time
	mu     sync.Mutex
	store  map[string]rateEntry
}

type rateEntry struct {
	count int
	reset time.Time
}

// NewMemoryLimiter returns nil when limit or window is not positive, which disables limiting.
func NewMemoryLimiter(limit int, window time.Duration, clock func() time.Time) *MemoryLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &MemoryLimiter{
		limit:  limit,
		window: window,
		clock:  clock,
		store:  make(map[string]rateEntry),
	}
}

// Allow implements Limiter.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	if l == nil {
		return Decision{Allowed: true}, nil
	}
	key = normalizeKey(key)
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.store[key]
	if !ok || !now.Before(entry.reset) {
		l.pruneExpiredLocked(now)
		l.store[key] = rateEntry{count: 1, reset: now.Add(l.window)}
		return Decision{Allowed: true, Remaining: l.limit - 1}, nil
	}

	if entry.count >= l.limit {
		return Decision{Allowed: false, RetryAfter: entry.reset.Sub(now)}, nil
	}
	entry.count++
	l.store[key] = entry
	return Decision{Allowed: true, Remaining: l.limit - entry.count}, nil
}

func (l *MemoryLimiter) pruneExpiredLocked(now time.Time) {
	for key, entry := range l.store {
		if !now.Before(entry.reset) {
			delete(l.store, key)
		}
	}
}

func normalizeKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "anonymous"
	}
	return key
}
