package domain

import (
	"context"
	"time"

	"shareit/internal/models"
)

// BookingFilter selects bookings either by booker or by item owner.
type BookingFilter struct {
	BookerID int64
	OwnerID  int64
	Category Category
	Now      time.Time
	Page     models.Page
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
	DeleteUser(ctx context.Context, id int64) error
	ListUsers(ctx context.Context) ([]*models.User, error)
}

type ItemRepository interface {
	CreateItem(ctx context.Context, item *models.Item) error
	GetItem(ctx context.Context, id int64) (*models.Item, error)
	LockItem(ctx context.Context, id int64) (*models.Item, error)
	UpdateItem(ctx context.Context, item *models.Item) error
	ListItemsByOwner(ctx context.Context, ownerID int64) ([]*models.Item, error)
	SearchAvailableItems(ctx context.Context, text string, page models.Page) ([]*models.Item, error)
	ListItemsByRequestIDs(ctx context.Context, requestIDs []int64) ([]*models.Item, error)
}

type BookingRepository interface {
	CreateBooking(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id int64) (*models.BookingDetails, error)
	UpdateBookingStatusWithVersion(ctx context.Context, id, fromVersion int64, from, to models.Status) error
	ListBookings(ctx context.Context, filter BookingFilter) ([]*models.BookingDetails, error)
	ListBookingsByItemIDs(ctx context.Context, itemIDs []int64) ([]*models.Booking, error)
	LastBooking(ctx context.Context, itemID int64, asOf time.Time, excludeRejected bool) (*models.Booking, error)
	NextBooking(ctx context.Context, itemID int64, asOf time.Time, excludeRejected bool) (*models.Booking, error)
	HasOverlap(ctx context.Context, itemID int64, start, end time.Time) (bool, error)
	HasFinishedBooking(ctx context.Context, itemID, bookerID int64, now time.Time) (bool, error)
}

type RequestRepository interface {
	CreateItemRequest(ctx context.Context, req *models.ItemRequest) error
	GetItemRequest(ctx context.Context, id int64) (*models.ItemRequest, error)
	ListItemRequestsByRequestor(ctx context.Context, requestorID int64) ([]*models.ItemRequest, error)
	ListItemRequestsExcluding(ctx context.Context, requestorID int64, page models.Page) ([]*models.ItemRequest, error)
}

type CommentRepository interface {
	CreateComment(ctx context.Context, comment *models.Comment) error
	ListCommentsByItemIDs(ctx context.Context, itemIDs []int64) ([]*models.Comment, error)
}

// Repository is the entity store. WithinTx runs fn against a transaction-bound view of the store;
// fn's error rolls the transaction back.
type Repository interface {
	UserRepository
	ItemRepository
	BookingRepository
	RequestRepository
	CommentRepository
	WithinTx(ctx context.Context, fn func(repo Repository) error) error
	Ping(ctx context.Context) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type RateLimiter interface {
	CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error)
}

type BookingService interface {
	CreateBooking(ctx context.Context, bookerID int64, input BookingInput) (*models.BookingDetails, error)
	DecideBooking(ctx context.Context, bookingID int64, approve bool, approverID int64) (*models.BookingDetails, error)
	GetBooking(ctx context.Context, bookingID, requesterID int64) (*models.BookingDetails, error)
	ListForBooker(ctx context.Context, bookerID int64, state string, page models.Page) ([]*models.BookingDetails, error)
	ListForOwner(ctx context.Context, ownerID int64, state string, page models.Page) ([]*models.BookingDetails, error)
}

type AvailabilityProjector interface {
	LastAndNext(ctx context.Context, itemID int64, asOf time.Time) (models.LastNext, error)
	BatchLastAndNext(ctx context.Context, ownerID int64, asOf time.Time) (map[int64]models.LastNext, error)
}

type UserService interface {
	CreateUser(ctx context.Context, input UserInput) (*models.User, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	UpdateUser(ctx context.Context, id int64, input UserInput) (*models.User, error)
	DeleteUser(ctx context.Context, id int64) error
	ListUsers(ctx context.Context) ([]*models.User, error)
}

type ItemService interface {
	CreateItem(ctx context.Context, ownerID int64, input ItemInput) (*models.Item, error)
	UpdateItem(ctx context.Context, ownerID, itemID int64, input ItemInput) (*models.Item, error)
	GetItem(ctx context.Context, itemID, userID int64) (*models.ItemView, error)
	ListOwnerItems(ctx context.Context, ownerID int64) ([]*models.ItemView, error)
	SearchItems(ctx context.Context, text string, page models.Page) ([]*models.Item, error)
	AddComment(ctx context.Context, authorID, itemID int64, text string) (*models.Comment, error)
}

type RequestService interface {
	CreateRequest(ctx context.Context, requestorID int64, description string) (*models.ItemRequest, error)
	ListOwnRequests(ctx context.Context, requestorID int64) ([]*models.ItemRequest, error)
	ListOtherRequests(ctx context.Context, userID int64, page models.Page) ([]*models.ItemRequest, error)
	GetRequest(ctx context.Context, userID, requestID int64) (*models.ItemRequest, error)
}

// BookingInput is a reservation request as received from the transport layer.
type BookingInput struct {
	ItemID int64
	Start  time.Time
	End    time.Time
}

// UserInput carries optional fields; nil means "leave unchanged" on update.
type UserInput struct {
	Name  *string
	Email *string
}

// ItemInput carries optional fields; nil means "leave unchanged" on update.
type ItemInput struct {
	Name        *string
	Description *string
	Available   *bool
	RequestID   *int64
}
