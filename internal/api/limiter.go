package api

import (
	"sync"

	"shareit/internal/config"

	"golang.org/x/time/rate"
)

const defaultBurst = 5

// keyedLimiter hands out one token bucket per client key.
type keyedLimiter struct {
	limiters sync.Map // map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func newKeyedLimiter(cfg config.APIRateLimitConfig) *keyedLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	return &keyedLimiter{rps: rate.Limit(cfg.RPS), burst: burst}
}

func (l *keyedLimiter) enabled() bool {
	return l.rps > 0
}

// allow reports whether key may proceed. A disabled limiter always allows.
func (l *keyedLimiter) allow(key string) bool {
	if !l.enabled() {
		return true
	}
	return l.get(key).Allow()
}

func (l *keyedLimiter) get(key string) *rate.Limiter {
	if v, ok := l.limiters.Load(key); ok {
		return v.(*rate.Limiter)
	}
	actual, _ := l.limiters.LoadOrStore(key, rate.NewLimiter(l.rps, l.burst))
	return actual.(*rate.Limiter)
}
