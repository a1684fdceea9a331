package respond

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BearBump/OrderTrack/internal/pkg/errs"
	"github.com/BearBump/OrderTrack/internal/services/effects"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{errs.ValidationFailed("rating", "bad"), http.StatusUnprocessableEntity},
		{effects.ErrNotArmed, http.StatusUnprocessableEntity},
		{errs.Conflict("dup"), http.StatusConflict},
		{effects.ErrInFlight, http.StatusConflict},
		{errs.NotFound("session", "x"), http.StatusNotFound},
		{errs.Unauthorized("nope"), http.StatusUnauthorized},
		{errs.Transient(context.DeadlineExceeded), http.StatusServiceUnavailable},
		{errors.Wrap(effects.ErrClosed, "open dialog"), http.StatusGone},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, StatusOf(tc.err), tc.err.Error())
	}
}

func TestErr_PassesValidationMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	Err(rec, errs.ValidationFailed("otherText", "Please describe the reason"))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "Please describe the reason", body.Error.Message)
	require.Equal(t, "otherText", body.Error.Field)
	require.Equal(t, http.StatusUnprocessableEntity, body.Error.Code)
}

func TestErr_HidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	Err(rec, errors.New("pq: connection refused on 10.0.0.3"))

	var body errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.NotContains(t, body.Error.Message, "10.0.0.3")
}
