package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"shareit/internal/config"
	"shareit/internal/events"
	"shareit/internal/metrics"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrQueueFull is returned by Enqueue when the buffer has no room left.
var ErrQueueFull = errors.New("event queue is full")

const (
	outcomeForwarded  = "forwarded"
	outcomeDeadLetter = "dead_letter"
	outcomeDropped    = "dropped"
)

// ListPusher is the slice of the redis client the forwarder needs.
type ListPusher interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

type deadLetter struct {
	Event    *events.Event `json:"event"`
	Error    string        `json:"error"`
	Attempts int           `json:"attempts"`
	FailedAt time.Time     `json:"failed_at"`
}

// EventForwarder copies booking lifecycle events from the in-process bus to a Redis list.
// Enqueue never blocks request handling; delivery runs on the Start goroutine.
type EventForwarder struct {
	sink          ListPusher
	queue         chan *events.Event
	listKey       string
	deadLetterKey string
	retryPolicy   RetryPolicy
	logger        *zerolog.Logger
	dropped       atomic.Int64
}

func NewEventForwarder(sink ListPusher, cfg config.EventsConfig, logger *zerolog.Logger) *EventForwarder {
	size := cfg.QueueSize
	if size <= 0 {
		size = 256
	}
	policy := RetryPolicyFromConfig(cfg)
	if policy.MaxRetries <= 0 {
		policy.MaxRetries = 3
	}

	return &EventForwarder{
		sink:          sink,
		queue:         make(chan *events.Event, size),
		listKey:       cfg.RedisList,
		deadLetterKey: cfg.DeadLetterList,
		retryPolicy:   policy,
		logger:        logger,
	}
}

// Attach subscribes the forwarder to every booking lifecycle event on the bus.
func (f *EventForwarder) Attach(bus *events.EventBus) {
	for _, eventType := range events.BookingEventTypes {
		bus.Subscribe(eventType, func(event *events.Event) error {
			if err := f.Enqueue(event); err != nil {
				f.logger.Warn().Str("event_type", event.Type).Msg("Event queue full, dropping event")
			}
			return nil
		})
	}
}

// Enqueue buffers an event for delivery.
func (f *EventForwarder) Enqueue(event *events.Event) error {
	select {
	case f.queue <- event:
		return nil
	default:
		f.dropped.Add(1)
		metrics.IncEventForwarded(outcomeDropped)
		return ErrQueueFull
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (f *EventForwarder) Dropped() int64 {
	return f.dropped.Load()
}

// Start delivers queued events until ctx is done, then flushes what is already buffered
// with a single attempt each.
func (f *EventForwarder) Start(ctx context.Context) {
	f.logger.Info().Str("list", f.listKey).Msg("Event forwarder started")
	defer f.logger.Info().Msg("Event forwarder stopped")

	for {
		select {
		case <-ctx.Done():
			f.flush()
			return
		case event := <-f.queue:
			f.deliver(ctx, event)
		}
	}
}

// Run starts delivery on its own goroutine, independent of any request context. The returned
// stop ends delivery, flushes the queue and waits for the flush to finish.
func (f *EventForwarder) Run() (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.Start(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

func (f *EventForwarder) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for {
		select {
		case event := <-f.queue:
			if err := f.push(ctx, event); err != nil {
				f.logger.Warn().Err(err).Str("event_type", event.Type).Msg("Failed to flush event on shutdown")
			}
		default:
			return
		}
	}
}

func (f *EventForwarder) deliver(ctx context.Context, event *events.Event) {
	var lastErr error
	for attempt := 1; attempt <= f.retryPolicy.MaxRetries; attempt++ {
		lastErr = f.push(ctx, event)
		if lastErr == nil {
			metrics.IncEventForwarded(outcomeForwarded)
			return
		}

		f.logger.Warn().Err(lastErr).
			Str("event_type", event.Type).
			Int("attempt", attempt).
			Msg("Failed to forward event")

		if attempt == f.retryPolicy.MaxRetries {
			break
		}
		if err := f.retryPolicy.Wait(ctx, attempt); err != nil {
			lastErr = err
			break
		}
	}

	f.pushDeadLetter(event, lastErr)
}

func (f *EventForwarder) push(ctx context.Context, event *events.Event) error {
	data, err := event.Marshal()
	if err != nil {
		return err
	}
	return f.sink.LPush(ctx, f.listKey, data).Err()
}

func (f *EventForwarder) pushDeadLetter(event *events.Event, cause error) {
	metrics.IncEventForwarded(outcomeDeadLetter)

	entry := deadLetter{
		Event:    event,
		Attempts: f.retryPolicy.MaxRetries,
		FailedAt: time.Now().UTC(),
	}
	if cause != nil {
		entry.Error = cause.Error()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		f.logger.Error().Err(err).Str("event_type", event.Type).Msg("Failed to encode dead letter")
		return
	}

	// ctx may already be cancelled here.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := f.sink.LPush(ctx, f.deadLetterKey, data).Err(); err != nil {
		f.logger.Error().Err(err).Str("event_type", event.Type).Msg("Failed to push dead letter")
	}
}
