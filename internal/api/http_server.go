package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"shareit/internal/config"
	"shareit/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const requestIDHeader = "X-Request-Id"

type ctxKey int

const requestIDKey ctxKey = iota

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// HTTPServer exposes the lending API over HTTP.
type HTTPServer struct {
	server *http.Server
	log    zerolog.Logger
}

// NewRouter builds the API handler: routes, then auth, then request logging and panic recovery.
func NewRouter(cfg config.APIConfig, svc Services, logger *zerolog.Logger) http.Handler {
	h := &handlers{svc: svc, logger: logger, now: time.Now}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.health)

	mux.HandleFunc("POST /users", h.createUser)
	mux.HandleFunc("GET /users", h.listUsers)
	mux.HandleFunc("GET /users/{id}", h.getUser)
	mux.HandleFunc("PATCH /users/{id}", h.updateUser)
	mux.HandleFunc("DELETE /users/{id}", h.deleteUser)

	mux.HandleFunc("POST /items", h.createItem)
	mux.HandleFunc("GET /items", h.listOwnerItems)
	mux.HandleFunc("GET /items/search", h.searchItems)
	mux.HandleFunc("GET /items/{id}", h.getItem)
	mux.HandleFunc("PATCH /items/{id}", h.updateItem)
	mux.HandleFunc("POST /items/{id}/comment", h.addComment)
	mux.HandleFunc("GET /items/{id}/availability", h.itemAvailability)

	mux.HandleFunc("POST /bookings", h.createBooking)
	mux.HandleFunc("GET /bookings", h.listBookerBookings)
	mux.HandleFunc("GET /bookings/owner", h.listOwnerBookings)
	mux.HandleFunc("GET /bookings/owner/export", h.exportOwnerBookings)
	mux.HandleFunc("GET /bookings/{id}", h.getBooking)
	mux.HandleFunc("PATCH /bookings/{id}", h.decideBooking)

	mux.HandleFunc("POST /requests", h.createRequest)
	mux.HandleFunc("GET /requests", h.listOwnRequests)
	mux.HandleFunc("GET /requests/all", h.listOtherRequests)
	mux.HandleFunc("GET /requests/{id}", h.getRequest)

	var handler http.Handler = mux
	handler = NewHTTPAuth(cfg).Wrap(handler)
	handler = recoverMiddleware(logger, handler)
	handler = accessLogMiddleware(logger, handler)
	return handler
}

func NewHTTPServer(cfg config.APIConfig, handler http.Handler, logger *zerolog.Logger) *HTTPServer {
	return &HTTPServer{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
		},
		log: logger.With().Str("component", "http").Logger(),
	}
}

func (s *HTTPServer) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func accessLogMiddleware(logger *zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey, requestID))

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		elapsed := time.Since(start)

		// ServeMux records the matched pattern on the request it was handed.
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveHTTP(route, recorder.status, elapsed)

		logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("route", route).
			Int("status", recorder.status).
			Dur("duration", elapsed).
			Msg("http request")
	})
}

func recoverMiddleware(logger *zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error().
					Str("request_id", requestIDFrom(r.Context())).
					Interface("panic", rec).
					Msg("handler panicked")
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
