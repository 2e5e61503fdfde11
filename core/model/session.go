package model

import "time"

// ActiveSession is the single live charging session. Power, price and
// parking fee are snapshotted from the catalog when the session starts.
type ActiveSession struct {
	ID              string    `json:"id"`
	StationID       string    `json:"station_id"`
	StationName     string    `json:"station_name"`
	Address         string    `json:"address"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	DurationMinutes int       `json:"duration_minutes"`
	PowerKW         float64   `json:"power"`
	PriceCents      float64   `json:"price_per_kwh"`
	ParkingFee      float64   `json:"parking_fee"`
	ReservationID   string    `json:"reservation_id,omitempty"`
}

// Window returns the planned length of the session.
func (s ActiveSession) Window() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

// ChargingSession is an entry of the charging history. Only Rating and
// Feedback change after creation.
type ChargingSession struct {
	ID              string    `json:"id"`
	StationName     string    `json:"station_name"`
	Address         string    `json:"address"`
	Date            time.Time `json:"date"`
	DurationMinutes int       `json:"duration_minutes"`
	KWh             float64   `json:"kwh"`
	TotalPrice      float64   `json:"total_price"`
	Rating          int       `json:"rating,omitempty"` // 1-5, 0 when unrated
	Feedback        string    `json:"feedback,omitempty"`
}

// Rated reports whether the session received a review.
func (c ChargingSession) Rated() bool { return c.Rating > 0 }
