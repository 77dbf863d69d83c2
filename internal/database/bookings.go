package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"shareit/internal/domain"
	"shareit/internal/models"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
)

type bookingRow struct {
	ID        int64  `db:"id"`
	ItemID    int64  `db:"item_id"`
	BookerID  int64  `db:"booker_id"`
	StartAt   int64  `db:"start_at"`
	EndAt     int64  `db:"end_at"`
	Status    string `db:"status"`
	Version   int64  `db:"version"`
	CreatedAt int64  `db:"created_at"`
	UpdatedAt int64  `db:"updated_at"`
}

func (r bookingRow) toModel() (*models.Booking, error) {
	status, err := models.ParseStatus(r.Status)
	if err != nil {
		return nil, fmt.Errorf("booking %d: %w", r.ID, err)
	}
	return &models.Booking{
		ID:        r.ID,
		ItemID:    r.ItemID,
		BookerID:  r.BookerID,
		Start:     fromMillis(r.StartAt),
		End:       fromMillis(r.EndAt),
		Status:    status,
		Version:   r.Version,
		CreatedAt: fromMillis(r.CreatedAt),
		UpdatedAt: fromMillis(r.UpdatedAt),
	}, nil
}

// bookingDetailsRow is one booking joined with its item and booker.
type bookingDetailsRow struct {
	bookingRow
	ItemName        string        `db:"item_name"`
	ItemDescription string        `db:"item_description"`
	ItemAvailable   bool          `db:"item_available"`
	ItemOwnerID     int64         `db:"item_owner_id"`
	ItemRequestID   sql.NullInt64 `db:"item_request_id"`
	ItemCreatedAt   int64         `db:"item_created_at"`
	ItemUpdatedAt   int64         `db:"item_updated_at"`
	BookerName      string        `db:"booker_name"`
	BookerEmail     string        `db:"booker_email"`
	BookerCreatedAt int64         `db:"booker_created_at"`
	BookerUpdatedAt int64         `db:"booker_updated_at"`
}

func (r bookingDetailsRow) toModel() (*models.BookingDetails, error) {
	booking, err := r.bookingRow.toModel()
	if err != nil {
		return nil, err
	}
	item := itemRow{
		ID:          r.ItemID,
		Name:        r.ItemName,
		Description: r.ItemDescription,
		Available:   r.ItemAvailable,
		OwnerID:     r.ItemOwnerID,
		RequestID:   r.ItemRequestID,
		CreatedAt:   r.ItemCreatedAt,
		UpdatedAt:   r.ItemUpdatedAt,
	}
	booker := userRow{
		ID:        r.BookerID,
		Name:      r.BookerName,
		Email:     r.BookerEmail,
		CreatedAt: r.BookerCreatedAt,
		UpdatedAt: r.BookerUpdatedAt,
	}
	return &models.BookingDetails{
		Booking: *booking,
		Item:    *item.toModel(),
		Booker:  *booker.toModel(),
	}, nil
}

var bookingColumns = []interface{}{
	"id", "item_id", "booker_id", "start_at", "end_at", "status", "version", "created_at", "updated_at",
}

func (db *DB) bookingDetails() *goqu.SelectDataset {
	return db.dialect.From(goqu.T("bookings").As("b")).Prepared(true).
		Join(goqu.T("items").As("i"), goqu.On(goqu.I("i.id").Eq(goqu.I("b.item_id")))).
		Join(goqu.T("users").As("u"), goqu.On(goqu.I("u.id").Eq(goqu.I("b.booker_id")))).
		Select(
			goqu.I("b.id"),
			goqu.I("b.item_id"),
			goqu.I("b.booker_id"),
			goqu.I("b.start_at"),
			goqu.I("b.end_at"),
			goqu.I("b.status"),
			goqu.I("b.version"),
			goqu.I("b.created_at"),
			goqu.I("b.updated_at"),
			goqu.I("i.name").As("item_name"),
			goqu.I("i.description").As("item_description"),
			goqu.I("i.available").As("item_available"),
			goqu.I("i.owner_id").As("item_owner_id"),
			goqu.I("i.request_id").As("item_request_id"),
			goqu.I("i.created_at").As("item_created_at"),
			goqu.I("i.updated_at").As("item_updated_at"),
			goqu.I("u.name").As("booker_name"),
			goqu.I("u.email").As("booker_email"),
			goqu.I("u.created_at").As("booker_created_at"),
			goqu.I("u.updated_at").As("booker_updated_at"),
		)
}

func (db *DB) CreateBooking(ctx context.Context, booking *models.Booking) error {
	now := time.Now().UTC().Truncate(time.Millisecond)
	ds := db.dialect.Insert("bookings").Prepared(true).Rows(goqu.Record{
		"item_id":    booking.ItemID,
		"booker_id":  booking.BookerID,
		"start_at":   toMillis(booking.Start),
		"end_at":     toMillis(booking.End),
		"status":     string(booking.Status),
		"version":    1,
		"created_at": toMillis(now),
		"updated_at": toMillis(now),
	})

	id, err := db.insert(ctx, ds)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}

	booking.ID = id
	booking.Start = fromMillis(toMillis(booking.Start))
	booking.End = fromMillis(toMillis(booking.End))
	booking.Version = 1
	booking.CreatedAt = now
	booking.UpdatedAt = now
	return nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.BookingDetails, error) {
	var row bookingDetailsRow
	err := db.get(ctx, &row, db.bookingDetails().Where(goqu.I("b.id").Eq(id)))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.NotFound("Booking %d not found", id)
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return row.toModel()
}

// UpdateBookingStatusWithVersion moves a booking from one status to another only if nobody
// changed it since fromVersion was read.
func (db *DB) UpdateBookingStatusWithVersion(ctx context.Context, id, fromVersion int64, from, to models.Status) error {
	query, args, err := db.dialect.Update("bookings").Prepared(true).
		Set(goqu.Record{
			"status":     string(to),
			"version":    goqu.L("version + 1"),
			"updated_at": toMillis(time.Now()),
		}).
		Where(
			goqu.C("id").Eq(id),
			goqu.C("status").Eq(string(from)),
			goqu.C("version").Eq(fromVersion),
		).
		ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build booking status update: %w", err)
	}

	affected, err := db.exec(ctx, query, args)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	if affected == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// ListBookings returns the bookings of one booker or of one owner's items that fall into
// filter.Category at filter.Now, newest start first.
func (db *DB) ListBookings(ctx context.Context, filter domain.BookingFilter) ([]*models.BookingDetails, error) {
	where := make([]exp.Expression, 0, 2)
	switch {
	case filter.BookerID != 0:
		where = append(where, goqu.I("b.booker_id").Eq(filter.BookerID))
	case filter.OwnerID != 0:
		where = append(where, goqu.I("i.owner_id").Eq(filter.OwnerID))
	default:
		return nil, fmt.Errorf("booking filter needs a booker or an owner")
	}

	categoryExp, err := categoryFilter(filter.Category, filter.Now)
	if err != nil {
		return nil, err
	}
	if categoryExp != nil {
		where = append(where, categoryExp)
	}

	page := filter.Page.Normalize()
	ds := db.bookingDetails().
		Where(where...).
		Order(goqu.I("b.start_at").Desc(), goqu.I("b.id").Asc()).
		Offset(uint(page.From)).
		Limit(uint(page.Size))

	var rows []bookingDetailsRow
	if err := db.selectAll(ctx, &rows, ds); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}

	result := make([]*models.BookingDetails, 0, len(rows))
	for _, r := range rows {
		details, err := r.toModel()
		if err != nil {
			return nil, err
		}
		result = append(result, details)
	}
	return result, nil
}

func (db *DB) ListBookingsByItemIDs(ctx context.Context, itemIDs []int64) ([]*models.Booking, error) {
	if len(itemIDs) == 0 {
		return []*models.Booking{}, nil
	}
	ds := db.from("bookings").Select(bookingColumns...).
		Where(goqu.C("item_id").In(itemIDs)).
		Order(goqu.C("item_id").Asc(), goqu.C("id").Asc())
	return db.queryBookings(ctx, ds)
}

// LastBooking is the booking with the greatest end strictly before asOf; higher id wins a tie.
// Returns nil without error when there is none.
func (db *DB) LastBooking(ctx context.Context, itemID int64, asOf time.Time, excludeRejected bool) (*models.Booking, error) {
	where := []exp.Expression{
		goqu.C("item_id").Eq(itemID),
		goqu.C("end_at").Lt(toMillis(asOf)),
	}
	if excludeRejected {
		where = append(where, goqu.C("status").Neq(string(models.StatusRejected)))
	}
	ds := db.from("bookings").Select(bookingColumns...).
		Where(where...).
		Order(goqu.C("end_at").Desc(), goqu.C("id").Desc()).
		Limit(1)
	return db.firstBooking(ctx, ds)
}

// NextBooking is the booking with the smallest start strictly after asOf; lower id wins a tie.
func (db *DB) NextBooking(ctx context.Context, itemID int64, asOf time.Time, excludeRejected bool) (*models.Booking, error) {
	where := []exp.Expression{
		goqu.C("item_id").Eq(itemID),
		goqu.C("start_at").Gt(toMillis(asOf)),
	}
	if excludeRejected {
		where = append(where, goqu.C("status").Neq(string(models.StatusRejected)))
	}
	ds := db.from("bookings").Select(bookingColumns...).
		Where(where...).
		Order(goqu.C("start_at").Asc(), goqu.C("id").Asc()).
		Limit(1)
	return db.firstBooking(ctx, ds)
}

// HasOverlap reports whether a non-rejected booking of the item intersects [start, end).
// Back-to-back bookings do not overlap.
func (db *DB) HasOverlap(ctx context.Context, itemID int64, start, end time.Time) (bool, error) {
	ds := db.from("bookings").Select(goqu.COUNT("*")).Where(
		goqu.C("item_id").Eq(itemID),
		goqu.C("status").Neq(string(models.StatusRejected)),
		goqu.C("start_at").Lt(toMillis(end)),
		goqu.C("end_at").Gt(toMillis(start)),
	)
	var count int64
	if err := db.get(ctx, &count, ds); err != nil {
		return false, fmt.Errorf("failed to check booking overlap: %w", err)
	}
	return count > 0, nil
}

// HasFinishedBooking reports whether bookerID has a booking of itemID that ended before now.
func (db *DB) HasFinishedBooking(ctx context.Context, itemID, bookerID int64, now time.Time) (bool, error) {
	ds := db.from("bookings").Select(goqu.COUNT("*")).Where(
		goqu.C("item_id").Eq(itemID),
		goqu.C("booker_id").Eq(bookerID),
		goqu.C("end_at").Lt(toMillis(now)),
	)
	var count int64
	if err := db.get(ctx, &count, ds); err != nil {
		return false, fmt.Errorf("failed to check finished bookings: %w", err)
	}
	return count > 0, nil
}

func (db *DB) firstBooking(ctx context.Context, ds *goqu.SelectDataset) (*models.Booking, error) {
	var row bookingRow
	if err := db.get(ctx, &row, ds); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return row.toModel()
}

func (db *DB) queryBookings(ctx context.Context, ds *goqu.SelectDataset) ([]*models.Booking, error) {
	var rows []bookingRow
	if err := db.selectAll(ctx, &rows, ds); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}

	bookings := make([]*models.Booking, 0, len(rows))
	for _, r := range rows {
		b, err := r.toModel()
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, nil
}
