package service

import (
	"context"
	"errors"
	"time"

	"shareit/internal/config"
	"shareit/internal/database"
	"shareit/internal/domain"
	"shareit/internal/events"
	"shareit/internal/metrics"
	"shareit/internal/models"

	"github.com/rs/zerolog"
)

const (
	sideBooker = "booker"
	sideOwner  = "owner"
)

type BookingService struct {
	repo     domain.Repository
	eventBus domain.EventPublisher
	config   config.BookingConfig
	logger   *zerolog.Logger
	now      func() time.Time
}

var _ domain.BookingService = (*BookingService)(nil)

func NewBookingService(repo domain.Repository, eventBus domain.EventPublisher, cfg config.BookingConfig, logger *zerolog.Logger) *BookingService {
	return &BookingService{
		repo:     repo,
		eventBus: eventBus,
		config:   cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// CreateBooking reserves an item for bookerID. All checks and the insert share one transaction.
func (s *BookingService) CreateBooking(ctx context.Context, bookerID int64, input domain.BookingInput) (*models.BookingDetails, error) {
	if err := validateBookingShape(input); err != nil {
		return nil, err
	}
	start := normalizeInstant(input.Start)
	end := normalizeInstant(input.End)

	var created *models.BookingDetails
	err := s.repo.WithinTx(ctx, func(repo domain.Repository) error {
		item, err := repo.LockItem(ctx, input.ItemID)
		if err != nil {
			return err
		}
		booker, err := repo.GetUser(ctx, bookerID)
		if err != nil {
			return err
		}
		if !item.Available {
			return domain.InvalidRequest("Item %d is not available for booking", item.ID)
		}
		if item.OwnerID == bookerID {
			return domain.InvalidRequest("Owner cannot book their own item %d", item.ID)
		}
		if err := validateBookingWindow(start, end, normalizeInstant(s.now())); err != nil {
			return err
		}
		if s.config.RejectOverlaps {
			overlap, err := repo.HasOverlap(ctx, item.ID, start, end)
			if err != nil {
				return err
			}
			if overlap {
				return domain.Conflict("Item %d is already booked for this period", item.ID)
			}
		}

		booking := &models.Booking{
			ItemID:   item.ID,
			BookerID: booker.ID,
			Start:    start,
			End:      end,
			Status:   models.StatusWaiting,
		}
		if err := repo.CreateBooking(ctx, booking); err != nil {
			return err
		}
		created = &models.BookingDetails{Booking: *booking, Item: *item, Booker: *booker}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.IncBookingCreated()
	s.logger.Info().
		Int64("booking_id", created.ID).
		Int64("item_id", created.ItemID).
		Int64("booker_id", bookerID).
		Time("start", created.Start).
		Time("end", created.End).
		Msg("Booking created")
	s.publishEvent(events.EventBookingCreated, created, bookerID)

	return created, nil
}

// DecideBooking approves or rejects a WAITING booking on behalf of the item owner.
func (s *BookingService) DecideBooking(ctx context.Context, bookingID int64, approve bool, approverID int64) (*models.BookingDetails, error) {
	var decided *models.BookingDetails
	err := s.repo.WithinTx(ctx, func(repo domain.Repository) error {
		current, err := repo.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if current.Item.OwnerID != approverID {
			return domain.Forbidden("User %d is not the owner of item %d", approverID, current.Item.ID)
		}

		target := models.Decision(approve)
		if !current.Status.CanTransitionTo(target) {
			return domain.InvalidState("Booking %d is already %s", bookingID, current.Status)
		}

		err = repo.UpdateBookingStatusWithVersion(ctx, bookingID, current.Version, current.Status, target)
		if errors.Is(err, database.ErrConcurrentModification) {
			return domain.InvalidState("Booking %d has already been decided", bookingID)
		}
		if err != nil {
			return err
		}

		decided = current
		decided.Status = target
		decided.Version++
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.IncBookingDecision(decided.Status.String())
	s.logger.Info().
		Int64("booking_id", bookingID).
		Int64("owner_id", approverID).
		Str("status", decided.Status.String()).
		Msg("Booking decided")

	eventType := events.EventBookingRejected
	if approve {
		eventType = events.EventBookingApproved
	}
	s.publishEvent(eventType, decided, approverID)

	return decided, nil
}

// GetBooking returns a booking to its booker or to the item owner. Anybody else gets NotFound,
// so the existence of other people's bookings is not disclosed.
func (s *BookingService) GetBooking(ctx context.Context, bookingID, requesterID int64) (*models.BookingDetails, error) {
	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.BookerID != requesterID && booking.Item.OwnerID != requesterID {
		return nil, domain.NotFound("Booking %d not found", bookingID)
	}
	return booking, nil
}

func (s *BookingService) ListForBooker(ctx context.Context, bookerID int64, state string, page models.Page) ([]*models.BookingDetails, error) {
	return s.list(ctx, sideBooker, bookerID, state, page)
}

func (s *BookingService) ListForOwner(ctx context.Context, ownerID int64, state string, page models.Page) ([]*models.BookingDetails, error) {
	return s.list(ctx, sideOwner, ownerID, state, page)
}

func (s *BookingService) list(ctx context.Context, side string, userID int64, state string, page models.Page) ([]*models.BookingDetails, error) {
	category, err := domain.ParseCategory(state)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	filter := domain.BookingFilter{
		Category: category,
		Now:      normalizeInstant(s.now()),
		Page:     page.Normalize(),
	}
	if side == sideOwner {
		filter.OwnerID = userID
	} else {
		filter.BookerID = userID
	}

	bookings, err := s.repo.ListBookings(ctx, filter)
	if err != nil {
		return nil, err
	}

	metrics.IncClassification(side, category.String())
	s.logger.Debug().
		Str("side", side).
		Int64("user_id", userID).
		Str("category", category.String()).
		Int("count", len(bookings)).
		Msg("Bookings listed")
	return bookings, nil
}

func (s *BookingService) publishEvent(eventType string, booking *models.BookingDetails, actorID int64) {
	if s.eventBus == nil {
		return
	}

	payload := events.BookingEventPayload{
		BookingID: booking.ID,
		ItemID:    booking.Item.ID,
		ItemName:  booking.Item.Name,
		OwnerID:   booking.Item.OwnerID,
		BookerID:  booking.BookerID,
		Status:    booking.Status.String(),
		Start:     booking.Start,
		End:       booking.End,
		ActorID:   actorID,
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("booking_id", booking.ID).Msg("publish event error")
	}
}
