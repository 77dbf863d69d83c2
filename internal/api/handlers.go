package api

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"shareit/internal/domain"
	"shareit/internal/export"
	"shareit/internal/models"
	"shareit/internal/service"

	"github.com/rs/zerolog"
)

// Services bundles what the HTTP handlers call into.
type Services struct {
	Users        domain.UserService
	Items        domain.ItemService
	Bookings     domain.BookingService
	Availability domain.AvailabilityProjector
	Requests     domain.RequestService
	Report       *export.OwnerReport
	RateLimit    *service.RateLimitService
	Health       func(ctx context.Context) error
}

type handlers struct {
	svc    Services
	logger *zerolog.Logger
	now    func() time.Time
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeDomainError(w, r, h.logger, err)
}

// callerID reads the acting user from the identity header.
func callerID(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.Header.Get(models.UserIDHeader))
	if raw == "" {
		return 0, domain.InvalidRequest("missing %s header", models.UserIDHeader)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.InvalidRequest("invalid %s header: %q", models.UserIDHeader, raw)
	}
	return id, nil
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.InvalidRequest("invalid %s: %q", name, raw)
	}
	return id, nil
}

// pageFrom parses from/size. from must be >= 0 and size > 0 when given.
func pageFrom(r *http.Request) (models.Page, error) {
	page := models.Page{From: 0, Size: models.DefaultPageSize}
	q := r.URL.Query()
	if raw := q.Get("from"); raw != "" {
		from, err := strconv.Atoi(raw)
		if err != nil || from < 0 {
			return page, domain.InvalidRequest("from must be a non-negative integer")
		}
		page.From = from
	}
	if raw := q.Get("size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 {
			return page, domain.InvalidRequest("size must be a positive integer")
		}
		page.Size = size
	}
	return page, nil
}

func stateParam(r *http.Request) string {
	state := r.URL.Query().Get("state")
	if strings.TrimSpace(state) == "" {
		return string(domain.CategoryAll)
	}
	return state
}

// limited applies the per-user write limit.
func (h *handlers) limited(w http.ResponseWriter, r *http.Request, userID int64) bool {
	if h.svc.RateLimit.Allow(r.Context(), userID) {
		return false
	}
	writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	return true
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	if h.svc.Health != nil {
		if err := h.svc.Health(r.Context()); err != nil {
			h.logger.Warn().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// users

func (h *handlers) createUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	user, err := h.svc.Users.CreateUser(r.Context(), req.input())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *handlers) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.Users.ListUsers(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if users == nil {
		users = []*models.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *handlers) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	user, err := h.svc.Users.GetUser(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *handlers) updateUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req userRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	user, err := h.svc.Users.UpdateUser(r.Context(), id, req.input())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *handlers) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.svc.Users.DeleteUser(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// items

func (h *handlers) createItem(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if h.limited(w, r, userID) {
		return
	}
	var req itemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	item, err := h.svc.Items.CreateItem(r.Context(), userID, req.input())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *handlers) updateItem(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	itemID, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if h.limited(w, r, userID) {
		return
	}
	var req itemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	item, err := h.svc.Items.UpdateItem(r.Context(), userID, itemID, req.input())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *handlers) getItem(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	itemID, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	view, err := h.svc.Items.GetItem(r.Context(), itemID, userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemView(view))
}

func (h *handlers) listOwnerItems(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	views, err := h.svc.Items.ListOwnerItems(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]itemViewResponse, 0, len(views))
	for _, v := range views {
		out = append(out, toItemView(v))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) searchItems(w http.ResponseWriter, r *http.Request) {
	page, err := pageFrom(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	items, err := h.svc.Items.SearchItems(r.Context(), r.URL.Query().Get("text"), page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if items == nil {
		items = []*models.Item{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *handlers) addComment(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	itemID, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if h.limited(w, r, userID) {
		return
	}
	var req commentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	comment, err := h.svc.Items.AddComment(r.Context(), userID, itemID, req.Text)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

// itemAvailability exposes the projector to the item's owner. ?at= moves the reference instant.
func (h *handlers) itemAvailability(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	itemID, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	asOf := h.now().UTC()
	if raw := r.URL.Query().Get("at"); raw != "" {
		at, err := parseAt(raw)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		asOf = at
	}

	view, err := h.svc.Items.GetItem(r.Context(), itemID, userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if view.OwnerID != userID {
		h.fail(w, r, domain.Forbidden("only the owner can see availability of item %d", itemID))
		return
	}

	ln, err := h.svc.Availability.LastAndNext(r.Context(), itemID, asOf)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, availabilityResponse{
		ItemID:      itemID,
		AsOf:        asOf,
		LastBooking: toShortBooking(ln.Last),
		NextBooking: toShortBooking(ln.Next),
	})
}

// parseAt reads a query-string instant. An unescaped "+hh:mm" offset arrives with the
// plus decoded to a space, so that form is retried with the plus restored.
func parseAt(raw string) (time.Time, error) {
	candidates := []string{raw}
	if strings.Contains(raw, " ") {
		candidates = append(candidates, strings.ReplaceAll(raw, " ", "+"))
	}
	for _, candidate := range candidates {
		var at apiTime
		if err := at.UnmarshalJSON([]byte(candidate)); err == nil && !at.IsZero() {
			return at.Time, nil
		}
	}
	return time.Time{}, domain.InvalidRequest("invalid at: %q", raw)
}

// bookings

func (h *handlers) createBooking(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if h.limited(w, r, userID) {
		return
	}
	var req bookingRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	booking, err := h.svc.Bookings.CreateBooking(r.Context(), userID, req.input())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingResponse(booking))
}

func (h *handlers) decideBooking(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	bookingID, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	approve, err := strconv.ParseBool(r.URL.Query().Get("approved"))
	if err != nil {
		h.fail(w, r, domain.InvalidRequest("approved must be true or false"))
		return
	}
	if h.limited(w, r, userID) {
		return
	}
	booking, err := h.svc.Bookings.DecideBooking(r.Context(), bookingID, approve, userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(booking))
}

func (h *handlers) getBooking(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	bookingID, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	booking, err := h.svc.Bookings.GetBooking(r.Context(), bookingID, userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(booking))
}

func (h *handlers) listBookerBookings(w http.ResponseWriter, r *http.Request) {
	h.listBookings(w, r, h.svc.Bookings.ListForBooker)
}

func (h *handlers) listOwnerBookings(w http.ResponseWriter, r *http.Request) {
	h.listBookings(w, r, h.svc.Bookings.ListForOwner)
}

type listFunc func(ctx context.Context, userID int64, state string, page models.Page) ([]*models.BookingDetails, error)

func (h *handlers) listBookings(w http.ResponseWriter, r *http.Request, list listFunc) {
	userID, err := callerID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := pageFrom(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	bookings, err := list(r.Context(), userID, stateParam(r), page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponses(bookings))
}

func (h *handlers) exportOwnerBookings(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	state := stateParam(r)

	// Buffered so a failed report still answers with a JSON error.
	var buf bytes.Buffer
	if err := h.svc.Report.Write(r.Context(), &buf, userID, state); err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.FileName(userID, strings.ToUpper(state), h.now())+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// requests

func (h *handlers) createRequest(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if h.limited(w, r, userID) {
		return
	}
	var req itemRequestCreate
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	created, err := h.svc.Requests.CreateRequest(r.Context(), userID, req.Description)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handlers) listOwnRequests(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	list, err := h.svc.Requests.ListOwnRequests(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if list == nil {
		list = []*models.ItemRequest{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handlers) listOtherRequests(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := pageFrom(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	list, err := h.svc.Requests.ListOtherRequests(r.Context(), userID, page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if list == nil {
		list = []*models.ItemRequest{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handlers) getRequest(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	requestID, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	req, err := h.svc.Requests.GetRequest(r.Context(), userID, requestID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}
