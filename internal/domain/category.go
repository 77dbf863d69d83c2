package domain

import (
	"strings"
	"time"

	"shareit/internal/models"
)

// Category selects a subset of a user's bookings relative to an instant and/or status.
type Category string

const (
	CategoryAll      Category = "ALL"
	CategoryCurrent  Category = "CURRENT"
	CategoryPast     Category = "PAST"
	CategoryFuture   Category = "FUTURE"
	CategoryWaiting  Category = "WAITING"
	CategoryRejected Category = "REJECTED"
)

// Categories lists every accepted category in display order.
var Categories = []Category{
	CategoryAll, CategoryCurrent, CategoryPast, CategoryFuture, CategoryWaiting, CategoryRejected,
}

var categoryRules = map[Category]func(b *models.Booking, now time.Time) bool{
	CategoryAll: func(*models.Booking, time.Time) bool { return true },
	CategoryCurrent: func(b *models.Booking, now time.Time) bool {
		return !b.Start.After(now) && !b.End.Before(now)
	},
	CategoryPast: func(b *models.Booking, now time.Time) bool {
		return b.End.Before(now)
	},
	CategoryFuture: func(b *models.Booking, now time.Time) bool {
		return b.Start.After(now)
	},
	CategoryWaiting: func(b *models.Booking, _ time.Time) bool {
		return b.Status == models.StatusWaiting
	},
	CategoryRejected: func(b *models.Booking, _ time.Time) bool {
		return b.Status == models.StatusRejected
	},
}

// ParseCategory accepts any letter case. Unknown values are rejected, never defaulted.
func ParseCategory(raw string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := categoryRules[c]; !ok {
		return "", InvalidRequest("Unknown state: %s", raw)
	}
	return c, nil
}

// Matches evaluates the category for one booking at now.
func (c Category) Matches(b *models.Booking, now time.Time) bool {
	rule, ok := categoryRules[c]
	if !ok {
		return false
	}
	return rule(b, now)
}

func (c Category) String() string {
	return string(c)
}
