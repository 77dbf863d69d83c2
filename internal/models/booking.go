package models

import (
	"fmt"
	"strings"
	"time"
)

// Status is the approval state of a booking.
type Status string

const (
	StatusWaiting  Status = "WAITING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

var statusTransitions = map[Status][]Status{
	StatusWaiting:  {StatusApproved, StatusRejected},
	StatusApproved: {},
	StatusRejected: {},
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	_, ok := statusTransitions[s]
	return ok
}

// CanTransitionTo reports whether a booking in status s may move to target.
func (s Status) CanTransitionTo(target Status) bool {
	for _, next := range statusTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return len(statusTransitions[s]) == 0
}

func (s Status) String() string {
	return string(s)
}

// ParseStatus converts a stored status value, ignoring case.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", fmt.Errorf("invalid booking status: %q", raw)
	}
	return s, nil
}

// Decision maps an owner's approve flag to the resulting status.
func Decision(approve bool) Status {
	if approve {
		return StatusApproved
	}
	return StatusRejected
}

type Booking struct {
	ID        int64     `json:"id"`
	ItemID    int64     `json:"item_id"`
	BookerID  int64     `json:"booker_id"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Status    Status    `json:"status"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BookingDetails is a booking with its item and booker already resolved.
type BookingDetails struct {
	Booking
	Item   Item `json:"item"`
	Booker User `json:"booker"`
}

// LastNext holds the most recent finished booking and the nearest upcoming one of an item.
type LastNext struct {
	Last *Booking `json:"last_booking"`
	Next *Booking `json:"next_booking"`
}
