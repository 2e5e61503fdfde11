// Package api holds the helpers shared by the HTTP handlers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/kilianp07/smartshift/core/availability"
	"github.com/kilianp07/smartshift/core/booking"
	"github.com/kilianp07/smartshift/core/catalog"
	"github.com/kilianp07/smartshift/core/engine"
)

// WriteJSON encodes v with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Status maps a core error to an HTTP status code.
func Status(err error) int {
	switch {
	case errors.Is(err, engine.ErrBookingExists),
		errors.Is(err, engine.ErrSessionActive),
		errors.Is(err, booking.ErrBookingExists),
		errors.Is(err, availability.ErrSlotUnavailable):
		return http.StatusConflict
	case errors.Is(err, engine.ErrReservationNotFound),
		errors.Is(err, engine.ErrSessionNotFound),
		errors.Is(err, engine.ErrNoActiveSession),
		errors.Is(err, engine.ErrNoReservation),
		errors.Is(err, catalog.ErrStationNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrInvalidRating),
		errors.Is(err, availability.ErrInvalidDuration),
		errors.Is(err, availability.ErrInvalidDayOffset),
		errors.Is(err, availability.ErrSlotNotOffered),
		errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// ErrBadRequest marks malformed query parameters or bodies.
var ErrBadRequest = errors.New("bad request")

// Error writes err as plain text with the status returned by Status.
func Error(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), Status(err))
}

// QueryInt reads an integer query parameter, returning def when absent.
func QueryInt(r *http.Request, name string, def int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Join(ErrBadRequest, errors.New(name+": "+err.Error()))
	}
	return v, nil
}

// QueryFloat reads a float query parameter, returning def when absent.
func QueryFloat(r *http.Request, name string, def float64) (float64, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.Join(ErrBadRequest, errors.New(name+": "+err.Error()))
	}
	return v, nil
}

// DecodeJSON reads the request body into v.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Join(ErrBadRequest, err)
	}
	return nil
}
