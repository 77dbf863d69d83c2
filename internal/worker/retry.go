package worker

import (
	"context"
	"math"
	"time"

	"shareit/internal/config"
)

// RetryPolicy defines exponential backoff parameters.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// RetryPolicyFromConfig maps the events section onto a policy with a doubling factor.
func RetryPolicyFromConfig(cfg config.EventsConfig) RetryPolicy {
	return RetryPolicy{
		MaxRetries:    cfg.MaxRetries,
		InitialDelay:  cfg.BaseDelay,
		MaxDelay:      cfg.MaxDelay,
		BackoffFactor: 2,
	}
}

// NextDelay returns delay for a given attempt (1-based) with clamping.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if r.InitialDelay <= 0 {
		r.InitialDelay = time.Second
	}
	if r.BackoffFactor <= 0 {
		r.BackoffFactor = 2
	}

	d := time.Duration(float64(r.InitialDelay) * math.Pow(r.BackoffFactor, float64(attempt-1)))
	if r.MaxDelay > 0 && d > r.MaxDelay {
		d = r.MaxDelay
	}
	if d <= 0 {
		d = r.InitialDelay
	}
	return d
}

// Wait sleeps for the attempt's delay or until ctx is done.
func (r RetryPolicy) Wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(r.NextDelay(attempt))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
