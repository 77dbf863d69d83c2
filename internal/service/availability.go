package service

import (
	"context"
	"time"

	"shareit/internal/domain"
	"shareit/internal/models"

	"github.com/rs/zerolog"
)

// AvailabilityService derives the "last" and "next" booking of items. It never writes.
type AvailabilityService struct {
	repo            domain.Repository
	excludeRejected bool
	logger          *zerolog.Logger
}

var _ domain.AvailabilityProjector = (*AvailabilityService)(nil)

func NewAvailabilityService(repo domain.Repository, excludeRejected bool, logger *zerolog.Logger) *AvailabilityService {
	return &AvailabilityService{
		repo:            repo,
		excludeRejected: excludeRejected,
		logger:          logger,
	}
}

// LastAndNext projects a single item at asOf. Missing bookings are nil, not errors.
func (s *AvailabilityService) LastAndNext(ctx context.Context, itemID int64, asOf time.Time) (models.LastNext, error) {
	if _, err := s.repo.GetItem(ctx, itemID); err != nil {
		return models.LastNext{}, err
	}
	asOf = normalizeInstant(asOf)

	last, err := s.repo.LastBooking(ctx, itemID, asOf, s.excludeRejected)
	if err != nil {
		return models.LastNext{}, err
	}
	next, err := s.repo.NextBooking(ctx, itemID, asOf, s.excludeRejected)
	if err != nil {
		return models.LastNext{}, err
	}
	return models.LastNext{Last: last, Next: next}, nil
}

// BatchLastAndNext projects every item of ownerID with one booking query.
// Each owned item has an entry, empty when it has no bookings.
func (s *AvailabilityService) BatchLastAndNext(ctx context.Context, ownerID int64, asOf time.Time) (map[int64]models.LastNext, error) {
	items, err := s.repo.ListItemsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	itemIDs := make([]int64, 0, len(items))
	for _, item := range items {
		itemIDs = append(itemIDs, item.ID)
	}
	return s.project(ctx, itemIDs, asOf)
}

func (s *AvailabilityService) project(ctx context.Context, itemIDs []int64, asOf time.Time) (map[int64]models.LastNext, error) {
	bookings, err := s.repo.ListBookingsByItemIDs(ctx, itemIDs)
	if err != nil {
		return nil, err
	}
	result := projectLastNext(itemIDs, bookings, normalizeInstant(asOf), s.excludeRejected)

	s.logger.Debug().Int("items", len(itemIDs)).Int("bookings", len(bookings)).Msg("Availability projected")
	return result, nil
}

// projectLastNext groups bookings by item and picks, per item, the greatest end before asOf
// (higher id on a tie) and the smallest start after asOf (lower id on a tie).
func projectLastNext(itemIDs []int64, bookings []*models.Booking, asOf time.Time, excludeRejected bool) map[int64]models.LastNext {
	result := make(map[int64]models.LastNext, len(itemIDs))
	for _, id := range itemIDs {
		result[id] = models.LastNext{}
	}

	for _, b := range bookings {
		current, ok := result[b.ItemID]
		if !ok {
			continue
		}
		if excludeRejected && b.Status == models.StatusRejected {
			continue
		}

		if b.End.Before(asOf) && isLater(b, current.Last) {
			current.Last = b
		}
		if b.Start.After(asOf) && isSooner(b, current.Next) {
			current.Next = b
		}
		result[b.ItemID] = current
	}
	return result
}

func isLater(candidate, best *models.Booking) bool {
	if best == nil {
		return true
	}
	if !candidate.End.Equal(best.End) {
		return candidate.End.After(best.End)
	}
	return candidate.ID > best.ID
}

func isSooner(candidate, best *models.Booking) bool {
	if best == nil {
		return true
	}
	if !candidate.Start.Equal(best.Start) {
		return candidate.Start.Before(best.Start)
	}
	return candidate.ID < best.ID
}
