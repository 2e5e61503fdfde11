package model

import (
	"fmt"
	"time"
)

// Layouts of the civil date and wall-clock time stored on a reservation.
const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

// DurationMenu lists the bookable charging durations in minutes.
var DurationMenu = []int{30, 60, 90, 120, 150, 180, 210, 240, 270, 300, 330, 360}

// ValidDuration reports whether minutes is one of the bookable durations.
func ValidDuration(minutes int) bool {
	for _, d := range DurationMenu {
		if d == minutes {
			return true
		}
	}
	return false
}

// ReservationStatus tracks the state of a stored reservation.
type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationCompleted ReservationStatus = "completed"
	ReservationCancelled ReservationStatus = "cancelled"
)

// Reservation is a booked time slot at a station. Date and StartTime carry
// no time zone; they are interpreted in the caller's location.
type Reservation struct {
	ID              string            `json:"id"`
	StationID       string            `json:"station_id"`
	StationName     string            `json:"station_name"`
	Date            string            `json:"date"`       // YYYY-MM-DD
	StartTime       string            `json:"start_time"` // HH:MM
	DurationMinutes int               `json:"duration_minutes"`
	EstimatedPrice  float64           `json:"estimated_price"`
	Status          ReservationStatus `json:"status"`
}

// Start combines Date and StartTime in loc.
func (r Reservation) Start(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(DateLayout+" "+ClockLayout, r.Date+" "+r.StartTime, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("reservation %s: %w", r.ID, err)
	}
	return t, nil
}

// Duration returns the booked duration.
func (r Reservation) Duration() time.Duration {
	return time.Duration(r.DurationMinutes) * time.Minute
}

// Validate checks the fields set when the reservation is committed.
func (r Reservation) Validate() error {
	if r.ID == "" || r.StationID == "" {
		return fmt.Errorf("reservation id and station id are required")
	}
	if !ValidDuration(r.DurationMinutes) {
		return fmt.Errorf("reservation %s: invalid duration %d", r.ID, r.DurationMinutes)
	}
	if _, err := r.Start(time.UTC); err != nil {
		return err
	}
	return nil
}
