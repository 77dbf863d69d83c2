package service

import (
	"context"
	"io"
	"testing"
	"time"

	"shareit/internal/config"
	"shareit/internal/database"
	"shareit/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishJSON(eventType string, payload interface{}) error {
	return m.Called(eventType, payload).Error(0)
}

type fixture struct {
	db           *database.DB
	publisher    *mockPublisher
	bookings     *BookingService
	availability *AvailabilityService
	items        *ItemService
	users        *UserService
	requests     *RequestService
	now          time.Time
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithConfig(t, config.BookingConfig{})
}

func newFixtureWithConfig(t *testing.T, cfg config.BookingConfig) *fixture {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	publisher := &mockPublisher{}
	publisher.On("PublishJSON", mock.Anything, mock.Anything).Return(nil).Maybe()

	now := time.Now().UTC().Truncate(time.Millisecond)
	clock := func() time.Time { return now }

	availability := NewAvailabilityService(db, cfg.ProjectionExcludeRejected, &logger)
	bookings := NewBookingService(db, publisher, cfg, &logger)
	bookings.now = clock
	items := NewItemService(db, availability, &logger)
	items.now = clock

	return &fixture{
		db:           db,
		publisher:    publisher,
		bookings:     bookings,
		availability: availability,
		items:        items,
		users:        NewUserService(db, &logger),
		requests:     NewRequestService(db, &logger),
		now:          now,
	}
}

func (f *fixture) user(t *testing.T, name string) *models.User {
	t.Helper()
	user := &models.User{Name: name, Email: name + "@example.com"}
	require.NoError(t, f.db.CreateUser(context.Background(), user))
	return user
}

func (f *fixture) item(t *testing.T, ownerID int64, name string, available bool) *models.Item {
	t.Helper()
	item := &models.Item{Name: name, Description: name + " for rent", Available: available, OwnerID: ownerID}
	require.NoError(t, f.db.CreateItem(context.Background(), item))
	return item
}

// seed stores a booking directly, bypassing the creation rules, so past windows can be set up.
func (f *fixture) seed(t *testing.T, itemID, bookerID int64, start, end time.Time, status models.Status) *models.Booking {
	t.Helper()
	booking := &models.Booking{ItemID: itemID, BookerID: bookerID, Start: start, End: end, Status: status}
	require.NoError(t, f.db.CreateBooking(context.Background(), booking))
	return booking
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

func int64Ptr(i int64) *int64 { return &i }

func detailIDs(list []*models.BookingDetails) []int64 {
	ids := make([]int64, 0, len(list))
	for _, b := range list {
		ids = append(ids, b.ID)
	}
	return ids
}
