package api

import (
	"time"

	"shareit/internal/domain"
	"shareit/internal/models"
)

type userRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

func (r userRequest) input() domain.UserInput {
	return domain.UserInput{Name: r.Name, Email: r.Email}
}

type itemRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Available   *bool   `json:"available"`
	RequestID   *int64  `json:"request_id"`
}

func (r itemRequest) input() domain.ItemInput {
	return domain.ItemInput{
		Name:        r.Name,
		Description: r.Description,
		Available:   r.Available,
		RequestID:   r.RequestID,
	}
}

type bookingRequest struct {
	ItemID int64   `json:"item_id"`
	Start  apiTime `json:"start"`
	End    apiTime `json:"end"`
}

func (r bookingRequest) input() domain.BookingInput {
	return domain.BookingInput{ItemID: r.ItemID, Start: r.Start.Time, End: r.End.Time}
}

type commentRequest struct {
	Text string `json:"text"`
}

type itemRequestCreate struct {
	Description string `json:"description"`
}

type refDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type bookingResponse struct {
	ID     int64         `json:"id"`
	Start  time.Time     `json:"start"`
	End    time.Time     `json:"end"`
	Status models.Status `json:"status"`
	Item   refDTO        `json:"item"`
	Booker refDTO        `json:"booker"`
}

func toBookingResponse(b *models.BookingDetails) bookingResponse {
	return bookingResponse{
		ID:     b.ID,
		Start:  b.Start,
		End:    b.End,
		Status: b.Status,
		Item:   refDTO{ID: b.Item.ID, Name: b.Item.Name},
		Booker: refDTO{ID: b.Booker.ID, Name: b.Booker.Name},
	}
}

func toBookingResponses(list []*models.BookingDetails) []bookingResponse {
	out := make([]bookingResponse, 0, len(list))
	for _, b := range list {
		out = append(out, toBookingResponse(b))
	}
	return out
}

// shortBooking is the last/next entry on an item view.
type shortBooking struct {
	ID       int64         `json:"id"`
	BookerID int64         `json:"booker_id"`
	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end"`
	Status   models.Status `json:"status"`
}

func toShortBooking(b *models.Booking) *shortBooking {
	if b == nil {
		return nil
	}
	return &shortBooking{ID: b.ID, BookerID: b.BookerID, Start: b.Start, End: b.End, Status: b.Status}
}

type availabilityResponse struct {
	ItemID      int64         `json:"item_id"`
	AsOf        time.Time     `json:"as_of"`
	LastBooking *shortBooking `json:"last_booking"`
	NextBooking *shortBooking `json:"next_booking"`
}

type itemViewResponse struct {
	models.Item
	LastBooking *shortBooking     `json:"last_booking"`
	NextBooking *shortBooking     `json:"next_booking"`
	Comments    []*models.Comment `json:"comments"`
}

func toItemView(v *models.ItemView) itemViewResponse {
	comments := v.Comments
	if comments == nil {
		comments = []*models.Comment{}
	}
	return itemViewResponse{
		Item:        v.Item,
		LastBooking: toShortBooking(v.Last),
		NextBooking: toShortBooking(v.Next),
		Comments:    comments,
	}
}
