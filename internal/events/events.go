package events

import (
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	EventBookingCreated  = "booking_created"
	EventBookingApproved = "booking_approved"
	EventBookingRejected = "booking_rejected"
)

// BookingEventTypes lists every lifecycle event a booking can emit.
var BookingEventTypes = []string{EventBookingCreated, EventBookingApproved, EventBookingRejected}

// BookingEventPayload describes the booking snapshot handed to event consumers.
type BookingEventPayload struct {
	BookingID int64     `json:"booking_id"`
	ItemID    int64     `json:"item_id"`
	ItemName  string    `json:"item_name"`
	OwnerID   int64     `json:"owner_id"`
	BookerID  int64     `json:"booker_id"`
	Status    string    `json:"status"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	ActorID   int64     `json:"actor_id"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string    `json:"type"`
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type and returns the first handler error.
// Every handler runs even if an earlier one failed.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var firstErr error
	for _, handler := range handlers {
		if err := handler(event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}
	return b.Publish(&event)
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}

// Marshal encodes the whole event envelope for external sinks.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEvent decodes an envelope produced by Marshal.
func UnmarshalEvent(raw []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
