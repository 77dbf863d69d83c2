package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"shareit/internal/config"
	"shareit/internal/events"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEventsConfig() config.EventsConfig {
	return config.EventsConfig{
		Enabled:        true,
		RedisList:      "shareit:events",
		DeadLetterList: "shareit:events:dead",
		QueueSize:      4,
		MaxRetries:     3,
		BaseDelay:      time.Millisecond,
		MaxDelay:       5 * time.Millisecond,
	}
}

// flakySink fails the first failures pushes to the main list.
type flakySink struct {
	mu       sync.Mutex
	failures int
	calls    map[string]int
	pushed   map[string][][]byte
}

func newFlakySink(failures int) *flakySink {
	return &flakySink{failures: failures, calls: map[string]int{}, pushed: map[string][][]byte{}}
}

func (s *flakySink) LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls[key]++
	if key == "shareit:events" && s.failures > 0 {
		s.failures--
		cmd := redis.NewIntCmd(ctx)
		cmd.SetErr(errors.New("connection reset"))
		return cmd
	}
	for _, v := range values {
		s.pushed[key] = append(s.pushed[key], v.([]byte))
	}
	return redis.NewIntResult(int64(len(s.pushed[key])), nil)
}

func (s *flakySink) snapshot(key string) (int, [][]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[key], append([][]byte(nil), s.pushed[key]...)
}

func newEvent(t *testing.T, eventType string, bookingID int64) *events.Event {
	t.Helper()
	event, err := events.NewJSONEvent(eventType, events.BookingEventPayload{BookingID: bookingID, Status: "WAITING"})
	require.NoError(t, err)
	return &event
}

func TestEventForwarder_ForwardsBusEventsToRedis(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	logger := zerolog.Nop()
	fwd := NewEventForwarder(client, testEventsConfig(), &logger)
	bus := events.NewEventBus()
	fwd.Attach(bus)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		fwd.Start(ctx)
		close(done)
	}()

	require.NoError(t, bus.PublishJSON(events.EventBookingCreated, events.BookingEventPayload{BookingID: 1}))
	require.NoError(t, bus.PublishJSON(events.EventBookingApproved, events.BookingEventPayload{BookingID: 1}))
	require.NoError(t, bus.PublishJSON("user_created", map[string]int{"id": 1}))

	assert.Eventually(t, func() bool {
		n, err := client.LLen(context.Background(), "shareit:events").Result()
		return err == nil && n == 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done

	raw, err := client.RPop(context.Background(), "shareit:events").Result()
	require.NoError(t, err)
	event, err := events.UnmarshalEvent([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, events.EventBookingCreated, event.Type)

	var payload events.BookingEventPayload
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, int64(1), payload.BookingID)
}

func TestEventForwarder_RetriesThenSucceeds(t *testing.T) {
	sink := newFlakySink(2)
	logger := zerolog.Nop()
	fwd := NewEventForwarder(sink, testEventsConfig(), &logger)

	fwd.deliver(context.Background(), newEvent(t, events.EventBookingCreated, 5))

	calls, pushed := sink.snapshot("shareit:events")
	assert.Equal(t, 3, calls)
	assert.Len(t, pushed, 1)
	deadCalls, _ := sink.snapshot("shareit:events:dead")
	assert.Zero(t, deadCalls)
}

func TestEventForwarder_DeadLettersAfterMaxRetries(t *testing.T) {
	sink := newFlakySink(10)
	logger := zerolog.Nop()
	fwd := NewEventForwarder(sink, testEventsConfig(), &logger)

	fwd.deliver(context.Background(), newEvent(t, events.EventBookingRejected, 9))

	calls, pushed := sink.snapshot("shareit:events")
	assert.Equal(t, 3, calls)
	assert.Empty(t, pushed)

	_, dead := sink.snapshot("shareit:events:dead")
	require.Len(t, dead, 1)
	var entry deadLetter
	require.NoError(t, json.Unmarshal(dead[0], &entry))
	assert.Equal(t, events.EventBookingRejected, entry.Event.Type)
	assert.Equal(t, "connection reset", entry.Error)
	assert.Equal(t, 3, entry.Attempts)
}

func TestEventForwarder_DropsWhenQueueFull(t *testing.T) {
	logger := zerolog.Nop()
	cfg := testEventsConfig()
	cfg.QueueSize = 1
	fwd := NewEventForwarder(newFlakySink(0), cfg, &logger)

	require.NoError(t, fwd.Enqueue(newEvent(t, events.EventBookingCreated, 1)))
	assert.ErrorIs(t, fwd.Enqueue(newEvent(t, events.EventBookingCreated, 2)), ErrQueueFull)
	assert.Equal(t, int64(1), fwd.Dropped())

	bus := events.NewEventBus()
	fwd.Attach(bus)
	assert.NoError(t, bus.PublishJSON(events.EventBookingCreated, events.BookingEventPayload{BookingID: 3}),
		"a full queue never fails the publisher")
	assert.Equal(t, int64(2), fwd.Dropped())
}

func TestEventForwarder_FlushesOnShutdown(t *testing.T) {
	sink := newFlakySink(0)
	logger := zerolog.Nop()
	fwd := NewEventForwarder(sink, testEventsConfig(), &logger)

	require.NoError(t, fwd.Enqueue(newEvent(t, events.EventBookingCreated, 1)))
	require.NoError(t, fwd.Enqueue(newEvent(t, events.EventBookingCreated, 2)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fwd.Start(ctx)

	_, pushed := sink.snapshot("shareit:events")
	assert.Len(t, pushed, 2)
}

func TestEventForwarder_RunStopDeliversLateEvents(t *testing.T) {
	sink := newFlakySink(0)
	logger := zerolog.Nop()
	bus := events.NewEventBus()
	fwd := NewEventForwarder(sink, testEventsConfig(), &logger)
	fwd.Attach(bus)

	stop := fwd.Run()

	// published while the API is still draining, right before stop
	require.NoError(t, bus.PublishJSON(events.EventBookingApproved, events.BookingEventPayload{BookingID: 1}))
	require.NoError(t, bus.PublishJSON(events.EventBookingRejected, events.BookingEventPayload{BookingID: 2}))
	stop()

	_, pushed := sink.snapshot("shareit:events")
	assert.Len(t, pushed, 2)
}

func TestRetryPolicy(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second}
	assert.Equal(t, time.Second, policy.NextDelay(0))
	assert.Equal(t, time.Second, policy.NextDelay(1))
	assert.Equal(t, 2*time.Second, policy.NextDelay(2))
	assert.Equal(t, 5*time.Second, policy.NextDelay(5), "capped")

	fromCfg := RetryPolicyFromConfig(config.EventsConfig{MaxRetries: 4, BaseDelay: 10 * time.Millisecond})
	assert.Equal(t, 4, fromCfg.MaxRetries)
	assert.Equal(t, 20*time.Millisecond, fromCfg.NextDelay(2))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, policy.Wait(ctx, 3), context.Canceled)
}
