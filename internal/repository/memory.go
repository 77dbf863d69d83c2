package repository

import (
	"context"
	"sync"
	"time"
)

type windowCounter struct {
	count     int
	expiresAt time.Time
}

// MemoryRateLimiter is the process-local counterpart of RedisRateLimiter.
type MemoryRateLimiter struct {
	mu       sync.Mutex
	counters map[int64]*windowCounter
	now      func() time.Time
}

func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{
		counters: make(map[int64]*windowCounter),
		now:      time.Now,
	}
}

func (r *MemoryRateLimiter) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.counters[userID]
	if !ok || !now.Before(entry.expiresAt) {
		entry = &windowCounter{expiresAt: now.Add(window)}
		r.counters[userID] = entry
	}
	entry.count++

	return entry.count <= limit, nil
}

// Sweep drops expired windows and returns how many were removed.
func (r *MemoryRateLimiter) Sweep() int {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, entry := range r.counters {
		if !now.Before(entry.expiresAt) {
			delete(r.counters, id)
			removed++
		}
	}
	return removed
}
