package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Keys are built from caller addresses, so the counter map grows with
// the client population. Entries older than this are dropped on the
// next sweep.
const memorySweepAge = 60

type memoryEntry struct {
	window int64
	count  int
}

// MemoryLimiter implements a fixed-window in-memory rate limiter with
// one-second windows.
type MemoryLimiter struct {
	mu        sync.Mutex
	counters  map[string]*memoryEntry
	lastSweep int64
}

// NewMemoryLimiter constructs a MemoryLimiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		counters: make(map[string]*memoryEntry),
	}
}

// Allow checks whether the request should be allowed in the current second.
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, now time.Time) (Result, error) {
	if limit <= 0 || key == "" {
		return Result{Allowed: true}, nil
	}
	sec := now.Unix()
	reset := time.Unix(sec+1, 0).UTC()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep(sec)

	entry := l.counters[key]
	if entry == nil {
		entry = &memoryEntry{window: sec}
		l.counters[key] = entry
	}
	if entry.window != sec {
		entry.window = sec
		entry.count = 0
	}
	if entry.count >= limit {
		return Result{Allowed: false, Remaining: 0, Reset: reset}, nil
	}
	entry.count++
	return Result{Allowed: true, Remaining: limit - entry.count, Reset: reset}, nil
}

// sweep drops counters whose window is long gone. Runs at most once per
// sweep age; callers hold the lock.
func (l *MemoryLimiter) sweep(sec int64) {
	if sec-l.lastSweep < memorySweepAge {
		return
	}
	l.lastSweep = sec
	for key, entry := range l.counters {
		if sec-entry.window >= memorySweepAge {
			delete(l.counters, key)
		}
	}
}
