package repository

import (
	"context"
	"sync"
	"time"

	"shareit/internal/domain"

	"github.com/rs/zerolog"
)

const defaultRecheckInterval = time.Minute

// FailoverRateLimiter prefers the primary limiter and switches to the fallback while the primary errors,
// probing the primary again once per recheck interval.
type FailoverRateLimiter struct {
	primary  domain.RateLimiter
	fallback domain.RateLimiter
	logger   *zerolog.Logger
	recheck  time.Duration
	now      func() time.Time

	mu        sync.Mutex
	down      bool
	lastCheck time.Time
}

func NewFailoverRateLimiter(primary, fallback domain.RateLimiter, logger *zerolog.Logger) *FailoverRateLimiter {
	return &FailoverRateLimiter{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		recheck:  defaultRecheckInterval,
		now:      time.Now,
	}
}

// IsDown reports whether calls are currently served by the fallback.
func (r *FailoverRateLimiter) IsDown() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.down
}

func (r *FailoverRateLimiter) usePrimary() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.down {
		return true
	}
	if r.now().Sub(r.lastCheck) > r.recheck {
		r.lastCheck = r.now()
		return true
	}
	return false
}

func (r *FailoverRateLimiter) markDown(err error) {
	r.mu.Lock()
	wasDown := r.down
	r.down = true
	r.lastCheck = r.now()
	r.mu.Unlock()

	if !wasDown {
		r.logger.Error().Err(err).Msg("Primary rate limiter failed, falling back to memory")
	}
}

func (r *FailoverRateLimiter) markUp() {
	r.mu.Lock()
	wasDown := r.down
	r.down = false
	r.mu.Unlock()

	if wasDown {
		r.logger.Info().Msg("Primary rate limiter recovered")
	}
}

func (r *FailoverRateLimiter) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, userID, limit, window)
		if err == nil {
			r.markUp()
			return allowed, nil
		}
		r.markDown(err)
	}

	return r.fallback.CheckRateLimit(ctx, userID, limit, window)
}
