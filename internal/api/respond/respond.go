// Package respond writes JSON responses and maps classified errors to HTTP
// statuses for every API in this module.
package respond

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/BearBump/OrderTrack/internal/pkg/errs"
	"github.com/BearBump/OrderTrack/internal/services/effects"
	"github.com/pkg/errors"
)

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Field   string `json:"field,omitempty"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func Error(w http.ResponseWriter, status int, message string) {
	var b errorBody
	b.Error.Message = message
	b.Error.Type = http.StatusText(status)
	b.Error.Code = status
	JSON(w, status, b)
}

// Err writes err with the status of its kind. Validation and conflict
// messages are passed through; everything else gets the customer-facing text.
func Err(w http.ResponseWriter, err error) {
	status := StatusOf(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "status", status, "error", err.Error())
	}

	var b errorBody
	b.Error.Message = errs.UserMessage(err)
	b.Error.Type = http.StatusText(status)
	b.Error.Code = status
	var e *errs.Error
	if errors.As(err, &e) {
		b.Error.Field = e.Field
	}
	JSON(w, status, b)
}

func StatusOf(err error) int {
	switch {
	case errors.Is(err, errs.ErrValidationFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errs.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, effects.ErrClosed):
		return http.StatusGone
	case errors.Is(err, errs.ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Decode reads a JSON body into v; an unreadable body is a validation error.
func Decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errs.ValidationFailed("body", "invalid JSON body")
	}
	return nil
}
