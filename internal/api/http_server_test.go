package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"shareit/internal/config"
	"shareit/internal/database"
	"shareit/internal/domain"
	"shareit/internal/events"
	"shareit/internal/export"
	"shareit/internal/models"
	"shareit/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type testAPI struct {
	t       *testing.T
	db      *database.DB
	handler http.Handler
	bus     *events.EventBus
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	bus := events.NewEventBus()
	availability := service.NewAvailabilityService(db, false, &logger)
	bookings := service.NewBookingService(db, bus, config.BookingConfig{}, &logger)

	svc := Services{
		Users:        service.NewUserService(db, &logger),
		Items:        service.NewItemService(db, availability, &logger),
		Bookings:     bookings,
		Availability: availability,
		Requests:     service.NewRequestService(db, &logger),
		Report:       export.NewOwnerReport(bookings, 0, &logger),
		Health:       db.Ping,
	}
	return &testAPI{t: t, db: db, handler: NewRouter(config.APIConfig{}, svc, &logger), bus: bus}
}

func (a *testAPI) do(method, path string, userID int64, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if userID != 0 {
		req.Header.Set(models.UserIDHeader, strconv.FormatInt(userID, 10))
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (a *testAPI) createUser(name string) models.User {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/users", 0, map[string]string{"name": name, "email": name + "@example.com"})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[models.User](a.t, rec)
}

func (a *testAPI) createItem(ownerID int64, name string) models.Item {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/items", ownerID, map[string]any{"name": name, "description": name + " for rent", "available": true})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[models.Item](a.t, rec)
}

func TestHealthz(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(http.MethodGet, "/healthz", 0, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestBookingLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	owner := api.createUser("owner")
	booker := api.createUser("booker")
	item := api.createItem(owner.ID, "Tent")

	var published []string
	api.bus.Subscribe(events.EventBookingCreated, func(e *events.Event) error {
		published = append(published, e.Type)
		return nil
	})

	start := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)
	rec := api.do(http.MethodPost, "/bookings", booker.ID, map[string]any{
		"item_id": item.ID,
		"start":   start.Format("2006-01-02T15:04:05"),
		"end":     start.Add(2 * time.Hour).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[bookingResponse](t, rec)
	assert.Equal(t, models.StatusWaiting, created.Status)
	assert.Equal(t, refDTO{ID: item.ID, Name: "Tent"}, created.Item)
	assert.Equal(t, refDTO{ID: booker.ID, Name: "booker"}, created.Booker)
	assert.True(t, start.Equal(created.Start))
	assert.Equal(t, []string{events.EventBookingCreated}, published)

	path := fmt.Sprintf("/bookings/%d", created.ID)

	rec = api.do(http.MethodPatch, path+"?approved=true", booker.ID, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(http.MethodPatch, path+"?approved=maybe", owner.ID, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodPatch, path+"?approved=true", owner.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.StatusApproved, decode[bookingResponse](t, rec).Status)

	rec = api.do(http.MethodPatch, path+"?approved=false", owner.ID, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "decided bookings are final")

	stranger := api.createUser("stranger")
	rec = api.do(http.MethodGet, path, stranger.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(http.MethodGet, path, owner.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(http.MethodGet, "/bookings?state=future", booker.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]bookingResponse](t, rec), 1)

	rec = api.do(http.MethodGet, "/bookings/owner", owner.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]bookingResponse](t, rec), 1)

	rec = api.do(http.MethodGet, "/bookings/owner?state=PAST", owner.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", string(bytes.TrimSpace(rec.Body.Bytes())))
}

func TestBookingErrorsOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	owner := api.createUser("owner")
	booker := api.createUser("booker")
	item := api.createItem(owner.ID, "Kayak")
	start := time.Now().UTC().Add(time.Hour)

	tests := []struct {
		name     string
		method   string
		path     string
		userID   int64
		body     any
		wantCode int
		wantErr  string
	}{
		{"missing header", http.MethodGet, "/bookings", 0, nil, http.StatusBadRequest, "missing X-Sharer-User-Id header"},
		{"bad header", http.MethodGet, "/bookings", -3, nil, http.StatusBadRequest, ""},
		{"unknown state", http.MethodGet, "/bookings?state=SOON", booker.ID, nil, http.StatusBadRequest, "Unknown state: SOON"},
		{"unknown user", http.MethodGet, "/bookings/owner", 999, nil, http.StatusNotFound, ""},
		{"negative from", http.MethodGet, "/bookings?from=-1", booker.ID, nil, http.StatusBadRequest, ""},
		{"zero size", http.MethodGet, "/bookings?size=0", booker.ID, nil, http.StatusBadRequest, ""},
		{"bad id", http.MethodGet, "/bookings/abc", booker.ID, nil, http.StatusBadRequest, ""},
		{"missing booking", http.MethodGet, "/bookings/999", booker.ID, nil, http.StatusNotFound, ""},
		{
			"self booking", http.MethodPost, "/bookings", owner.ID,
			map[string]any{"item_id": item.ID, "start": start, "end": start.Add(time.Hour)},
			http.StatusBadRequest, "",
		},
		{
			"end before start", http.MethodPost, "/bookings", booker.ID,
			map[string]any{"item_id": item.ID, "start": start, "end": start.Add(-time.Minute)},
			http.StatusBadRequest, "",
		},
		{
			"unknown field", http.MethodPost, "/bookings", booker.ID,
			map[string]any{"itemId": item.ID},
			http.StatusBadRequest, "",
		},
		{
			"missing item", http.MethodPost, "/bookings", booker.ID,
			map[string]any{"item_id": 999, "start": start, "end": start.Add(time.Hour)},
			http.StatusNotFound, "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(tt.method, tt.path, tt.userID, tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			body := decode[errorResponse](t, rec)
			assert.NotEmpty(t, body.Error)
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, body.Error)
			}
		})
	}
}

func TestUsersOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	alice := api.createUser("alice")

	rec := api.do(http.MethodPost, "/users", 0, map[string]string{"name": "Alice 2", "email": "alice@example.com"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(http.MethodPatch, fmt.Sprintf("/users/%d", alice.ID), 0, map[string]string{"name": "Alice B"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Alice B", decode[models.User](t, rec).Name)

	rec = api.do(http.MethodGet, "/users", 0, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.User](t, rec), 1)

	rec = api.do(http.MethodDelete, fmt.Sprintf("/users/%d", alice.ID), 0, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(http.MethodGet, fmt.Sprintf("/users/%d", alice.ID), 0, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteUserWithBookingsOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	owner := api.createUser("owner")
	booker := api.createUser("booker")
	item := api.createItem(owner.ID, "Ladder")

	now := time.Now().UTC()
	booking := &models.Booking{ItemID: item.ID, BookerID: booker.ID, Start: now.Add(time.Hour), End: now.Add(2 * time.Hour), Status: models.StatusWaiting}
	require.NoError(t, api.db.CreateBooking(context.Background(), booking))

	rec := api.do(http.MethodDelete, fmt.Sprintf("/users/%d", booker.ID), 0, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = api.do(http.MethodDelete, fmt.Sprintf("/users/%d", owner.ID), 0, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(http.MethodGet, fmt.Sprintf("/bookings/%d", booking.ID), owner.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(http.MethodGet, "/bookings/owner?state=ALL", owner.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]bookingResponse](t, rec), 1)
}

func TestItemsOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	owner := api.createUser("owner")
	booker := api.createUser("booker")
	item := api.createItem(owner.ID, "Mountain Bike")

	now := time.Now().UTC()
	past := &models.Booking{ItemID: item.ID, BookerID: booker.ID, Start: now.Add(-3 * time.Hour), End: now.Add(-2 * time.Hour), Status: models.StatusApproved}
	require.NoError(t, api.db.CreateBooking(context.Background(), past))
	next := &models.Booking{ItemID: item.ID, BookerID: booker.ID, Start: now.Add(2 * time.Hour), End: now.Add(3 * time.Hour), Status: models.StatusWaiting}
	require.NoError(t, api.db.CreateBooking(context.Background(), next))

	rec := api.do(http.MethodPost, fmt.Sprintf("/items/%d/comment", item.ID), booker.ID, map[string]string{"text": "Smooth ride"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = api.do(http.MethodGet, fmt.Sprintf("/items/%d", item.ID), owner.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[itemViewResponse](t, rec)
	require.NotNil(t, view.LastBooking)
	require.NotNil(t, view.NextBooking)
	assert.Equal(t, past.ID, view.LastBooking.ID)
	assert.Equal(t, next.ID, view.NextBooking.ID)
	require.Len(t, view.Comments, 1)
	assert.Equal(t, "Smooth ride", view.Comments[0].Text)

	rec = api.do(http.MethodGet, fmt.Sprintf("/items/%d", item.ID), booker.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view = decode[itemViewResponse](t, rec)
	assert.Nil(t, view.LastBooking)
	assert.Nil(t, view.NextBooking)

	rec = api.do(http.MethodGet, "/items", owner.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]itemViewResponse](t, rec), 1)

	rec = api.do(http.MethodGet, "/items/search?text=bike", 0, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Item](t, rec), 1)

	rec = api.do(http.MethodGet, "/items/search?text=", 0, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]models.Item](t, rec))

	rec = api.do(http.MethodPatch, fmt.Sprintf("/items/%d", item.ID), booker.ID, map[string]bool{"available": false})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(http.MethodPatch, fmt.Sprintf("/items/%d", item.ID), owner.ID, map[string]bool{"available": false})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[models.Item](t, rec).Available)
}

func TestItemAvailabilityOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	owner := api.createUser("owner")
	booker := api.createUser("booker")
	item := api.createItem(owner.ID, "Drill")

	at := time.Date(2031, 1, 10, 12, 0, 0, 0, time.UTC)
	first := &models.Booking{ItemID: item.ID, BookerID: booker.ID, Start: at.Add(-48 * time.Hour), End: at.Add(-24 * time.Hour), Status: models.StatusApproved}
	second := &models.Booking{ItemID: item.ID, BookerID: booker.ID, Start: at.Add(24 * time.Hour), End: at.Add(48 * time.Hour), Status: models.StatusWaiting}
	require.NoError(t, api.db.CreateBooking(context.Background(), first))
	require.NoError(t, api.db.CreateBooking(context.Background(), second))

	path := fmt.Sprintf("/items/%d/availability?at=%s", item.ID, at.Format(time.RFC3339))
	rec := api.do(http.MethodGet, path, owner.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[availabilityResponse](t, rec)
	require.NotNil(t, body.LastBooking)
	require.NotNil(t, body.NextBooking)
	assert.Equal(t, first.ID, body.LastBooking.ID)
	assert.Equal(t, second.ID, body.NextBooking.ID)
	assert.True(t, at.Equal(body.AsOf))

	rec = api.do(http.MethodGet, path, booker.ID, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// same instant written with an unescaped offset
	offset := at.In(time.FixedZone("MSK", 3*60*60)).Format(time.RFC3339)
	rec = api.do(http.MethodGet, fmt.Sprintf("/items/%d/availability?at=%s", item.ID, offset), owner.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, at.Equal(decode[availabilityResponse](t, rec).AsOf))

	rec = api.do(http.MethodGet, fmt.Sprintf("/items/%d/availability?at=yesterday", item.ID), owner.ID, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParseAt(t *testing.T) {
	want := time.Date(2030, 1, 1, 7, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{name: "utc", raw: "2030-01-01T07:00:00Z"},
		{name: "escaped offset", raw: "2030-01-01T10:00:00+03:00"},
		{name: "offset with decoded plus", raw: "2030-01-01T10:00:00 03:00"},
		{name: "zone-less", raw: "2030-01-01T07:00:00"},
		{name: "garbage", raw: "soon", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAt(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidRequest)
				return
			}
			require.NoError(t, err)
			assert.True(t, want.Equal(got), got)
		})
	}
}

func TestRequestsOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	alice := api.createUser("alice")
	bob := api.createUser("bob")

	rec := api.do(http.MethodPost, "/requests", alice.ID, map[string]string{"description": "Need a ladder"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[models.ItemRequest](t, rec)

	rec = api.do(http.MethodPost, "/items", bob.ID, map[string]any{
		"name": "Ladder", "description": "3m", "available": true, "request_id": created.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = api.do(http.MethodGet, "/requests", alice.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	own := decode[[]models.ItemRequest](t, rec)
	require.Len(t, own, 1)
	require.Len(t, own[0].Items, 1)
	assert.Equal(t, "Ladder", own[0].Items[0].Name)

	rec = api.do(http.MethodGet, "/requests/all?from=0&size=5", bob.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.ItemRequest](t, rec), 1)

	rec = api.do(http.MethodGet, fmt.Sprintf("/requests/%d", created.ID), bob.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(http.MethodPost, "/requests", alice.ID, map[string]string{"description": " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOwnerExportOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	owner := api.createUser("owner")
	booker := api.createUser("booker")
	item := api.createItem(owner.ID, "Tent")

	now := time.Now().UTC()
	require.NoError(t, api.db.CreateBooking(context.Background(), &models.Booking{
		ItemID: item.ID, BookerID: booker.ID, Start: now.Add(time.Hour), End: now.Add(2 * time.Hour), Status: models.StatusWaiting,
	}))

	rec := api.do(http.MethodGet, "/bookings/owner/export?state=waiting", owner.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "bookings_owner_")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "_WAITING_")

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Bookings")
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rec = api.do(http.MethodGet, "/bookings/owner/export?state=bogus", owner.ID, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestRecoverMiddleware(t *testing.T) {
	logger := zerolog.New(io.Discard)
	handler := recoverMiddleware(&logger, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decode[errorResponse](t, rec).Error)
}
