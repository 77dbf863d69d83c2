package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockLimiter struct {
	mock.Mock
}

func (m *mockLimiter) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, userID, limit, window)
	return args.Bool(0), args.Error(1)
}

func TestRateLimitService_Allow(t *testing.T) {
	logger := zerolog.Nop()
	ctx := context.Background()

	limiter := &mockLimiter{}
	limiter.On("CheckRateLimit", ctx, int64(1), 5, time.Minute).Return(true, nil).Once()
	limiter.On("CheckRateLimit", ctx, int64(2), 5, time.Minute).Return(false, nil).Once()
	limiter.On("CheckRateLimit", ctx, int64(3), 5, time.Minute).Return(false, errors.New("redis down")).Once()

	s := NewRateLimitService(limiter, 5, time.Minute, &logger)
	assert.True(t, s.Allow(ctx, 1))
	assert.False(t, s.Allow(ctx, 2))
	assert.True(t, s.Allow(ctx, 3), "limiter failures let the request through")
	limiter.AssertExpectations(t)
}

func TestRateLimitService_Disabled(t *testing.T) {
	logger := zerolog.Nop()

	var nilService *RateLimitService
	assert.True(t, nilService.Allow(context.Background(), 1))

	limiter := &mockLimiter{}
	s := NewRateLimitService(limiter, 0, time.Minute, &logger)
	assert.True(t, s.Allow(context.Background(), 1))
	limiter.AssertNotCalled(t, "CheckRateLimit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
