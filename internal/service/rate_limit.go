package service

import (
	"context"
	"time"

	"shareit/internal/domain"

	"github.com/rs/zerolog"
)

// RateLimitService caps requests per user. A broken limiter lets traffic through.
type RateLimitService struct {
	limiter domain.RateLimiter
	limit   int
	window  time.Duration
	logger  *zerolog.Logger
}

func NewRateLimitService(limiter domain.RateLimiter, limit int, window time.Duration, logger *zerolog.Logger) *RateLimitService {
	return &RateLimitService{
		limiter: limiter,
		limit:   limit,
		window:  window,
		logger:  logger,
	}
}

// Allow reports whether userID may make another request in the current window.
func (s *RateLimitService) Allow(ctx context.Context, userID int64) bool {
	if s == nil || s.limiter == nil || s.limit <= 0 {
		return true
	}

	allowed, err := s.limiter.CheckRateLimit(ctx, userID, s.limit, s.window)
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", userID).Msg("failed to check rate limit")
		return true
	}
	if !allowed {
		s.logger.Warn().Int64("user_id", userID).Int("limit", s.limit).Dur("window", s.window).Msg("rate limit exceeded")
	}
	return allowed
}
