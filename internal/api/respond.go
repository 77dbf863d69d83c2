package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"shareit/internal/domain"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, errorResponse{Error: message})
}

// statusFor maps a domain error kind onto an HTTP status. Anything unknown is internal.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrInvalidState):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeDomainError(w http.ResponseWriter, r *http.Request, logger *zerolog.Logger, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		logger.Error().Err(err).
			Str("request_id", requestIDFrom(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeError(w, code, "internal server error")
		return
	}
	writeError(w, code, err.Error())
}

func decodeJSON(r *http.Request, dst any) error {
	body := io.LimitReader(r.Body, maxBodyBytes)
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return domain.InvalidRequest("invalid JSON body: %v", err)
	}
	return nil
}

// apiTime accepts RFC 3339 instants and zone-less local timestamps, which are read as UTC.
type apiTime struct {
	time.Time
}

var localLayouts = []string{"2006-01-02T15:04:05", "2006-01-02T15:04:05.999999999", "2006-01-02T15:04"}

func (t *apiTime) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		t.Time = time.Time{}
		return nil
	}
	if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		t.Time = parsed.UTC()
		return nil
	}
	for _, layout := range localLayouts {
		if parsed, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", raw)
}
