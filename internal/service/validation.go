package service

import (
	"regexp"
	"strings"
	"time"

	"shareit/internal/domain"
)

const (
	maxNameLength        = 255
	maxDescriptionLength = 1000
	maxCommentLength     = 2000
	maxEmailLength       = 254
)

var reEmail = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

// normalizeInstant drops sub-millisecond precision, which the store does not keep.
func normalizeInstant(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// validateBookingShape checks what can be checked without touching the store.
func validateBookingShape(input domain.BookingInput) error {
	if input.ItemID <= 0 {
		return domain.InvalidRequest("Item id is required")
	}
	if input.Start.IsZero() || input.End.IsZero() {
		return domain.InvalidRequest("Booking start and end are required")
	}
	return nil
}

// validateBookingWindow enforces start >= now and end > start. A start equal to now is accepted.
func validateBookingWindow(start, end, now time.Time) error {
	if start.Before(now) {
		return domain.InvalidRequest("Booking start %s is in the past", start.Format(time.RFC3339))
	}
	if !end.After(start) {
		return domain.InvalidRequest("Booking end %s must be after start %s",
			end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return nil
}

func validateName(field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", domain.InvalidRequest("%s must not be blank", field)
	}
	if len(value) > maxNameLength {
		return "", domain.InvalidRequest("%s is longer than %d characters", field, maxNameLength)
	}
	return value, nil
}

func validateText(field, value string, limit int) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", domain.InvalidRequest("%s must not be blank", field)
	}
	if len(value) > limit {
		return "", domain.InvalidRequest("%s is longer than %d characters", field, limit)
	}
	return value, nil
}

func validateEmail(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" || len(value) > maxEmailLength || !reEmail.MatchString(value) {
		return "", domain.InvalidRequest("Invalid email: %q", value)
	}
	return value, nil
}

func validateUserInput(input domain.UserInput, create bool) error {
	if create && (input.Name == nil || input.Email == nil) {
		return domain.InvalidRequest("Name and email are required")
	}
	if input.Name != nil {
		name, err := validateName("Name", *input.Name)
		if err != nil {
			return err
		}
		*input.Name = name
	}
	if input.Email != nil {
		email, err := validateEmail(*input.Email)
		if err != nil {
			return err
		}
		*input.Email = email
	}
	return nil
}

func validateItemInput(input domain.ItemInput, create bool) error {
	if create && (input.Name == nil || input.Description == nil || input.Available == nil) {
		return domain.InvalidRequest("Name, description and availability are required")
	}
	if input.Name != nil {
		name, err := validateName("Name", *input.Name)
		if err != nil {
			return err
		}
		*input.Name = name
	}
	if input.Description != nil {
		description, err := validateText("Description", *input.Description, maxDescriptionLength)
		if err != nil {
			return err
		}
		*input.Description = description
	}
	return nil
}
