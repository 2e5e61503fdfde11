package booking

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kilianp07/smartshift/api"
	"github.com/kilianp07/smartshift/core/availability"
	"github.com/kilianp07/smartshift/core/engine"
	"github.com/kilianp07/smartshift/core/model"
)

// Engine is the subset of the booking engine driven over HTTP.
type Engine interface {
	Now() time.Time
	Location() *time.Location
	Reservations() []model.Reservation
	Book(ctx context.Context, r model.Reservation) (model.Reservation, error)
	Cancel(ctx context.Context, id string) error
	ScanSuccess(ctx context.Context, hint string) (model.ActiveSession, error)
	StartWalkUp(ctx context.Context, stationID string, minutes int) (model.ActiveSession, error)
	ActiveSession() (model.ActiveSession, bool)
	Stop(ctx context.Context) (model.ChargingSession, error)
	History() []model.ChargingSession
	Review(ctx context.Context, id string, rating int, feedback string) (model.ChargingSession, error)
}

// ReserveRequest is the body of POST /api/reservations. Date wins over Day
// when both are set.
type ReserveRequest struct {
	StationID       string `json:"station_id"`
	Date            string `json:"date,omitempty"`
	Day             int    `json:"day,omitempty"`
	StartTime       string `json:"start_time"`
	DurationMinutes int    `json:"duration_minutes"`
}

// NewReservationsHandler serves GET and POST /api/reservations.
func NewReservationsHandler(e Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			api.WriteJSON(w, http.StatusOK, e.Reservations())
		case http.MethodPost:
			var req ReserveRequest
			if err := api.DecodeJSON(r, &req); err != nil {
				api.Error(w, err)
				return
			}
			if req.StationID == "" || req.StartTime == "" {
				api.Error(w, fmt.Errorf("%w: station_id and start_time are required", api.ErrBadRequest))
				return
			}
			date := req.Date
			if date == "" {
				if req.Day < 0 || req.Day > availability.MaxDayOffset {
					api.Error(w, availability.ErrInvalidDayOffset)
					return
				}
				date = availability.DateForOffset(e.Now().In(e.Location()), req.Day)
			}
			res, err := e.Book(r.Context(), model.Reservation{
				StationID:       req.StationID,
				Date:            date,
				StartTime:       req.StartTime,
				DurationMinutes: req.DurationMinutes,
			})
			if err != nil {
				api.Error(w, err)
				return
			}
			api.WriteJSON(w, http.StatusCreated, res)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}

// NewCancelHandler removes a reservation via DELETE /api/reservations/{id}.
func NewCancelHandler(e Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := e.Cancel(r.Context(), r.PathValue("id")); err != nil {
			api.Error(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// ScanRequest is the body of POST /api/scan. An empty body activates the
// earliest reservation.
type ScanRequest struct {
	ReservationID string `json:"reservation_id,omitempty"`
}

// NewScanHandler reports a successful QR scan via POST /api/scan.
func NewScanHandler(e Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req ScanRequest
		if r.ContentLength != 0 {
			if err := api.DecodeJSON(r, &req); err != nil {
				api.Error(w, err)
				return
			}
		}
		s, err := e.ScanSuccess(r.Context(), req.ReservationID)
		if errors.Is(err, engine.ErrNoReservation) {
			api.WriteJSON(w, http.StatusNotFound, NoticeResponse{Notice: engine.NoticeNoReservation})
			return
		}
		if err != nil {
			api.Error(w, err)
			return
		}
		api.WriteJSON(w, http.StatusCreated, s)
	})
}

// WalkUpRequest is the body of POST /api/walkup.
type WalkUpRequest struct {
	StationID       string `json:"station_id"`
	DurationMinutes int    `json:"duration_minutes"`
}

// NewWalkUpHandler starts a session without reservation via POST /api/walkup.
func NewWalkUpHandler(e Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req WalkUpRequest
		if err := api.DecodeJSON(r, &req); err != nil {
			api.Error(w, err)
			return
		}
		if req.StationID == "" {
			api.Error(w, fmt.Errorf("%w: station_id is required", api.ErrBadRequest))
			return
		}
		s, err := e.StartWalkUp(r.Context(), req.StationID, req.DurationMinutes)
		if err != nil {
			api.Error(w, err)
			return
		}
		api.WriteJSON(w, http.StatusCreated, s)
	})
}

// NoticeResponse carries the soft failure of a scan.
type NoticeResponse struct {
	Notice string `json:"notice"`
}
