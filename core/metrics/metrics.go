package metrics

import "time"

// BookingAction is the kind of reservation change being recorded.
type BookingAction string

const (
	BookingCreated   BookingAction = "created"
	BookingCancelled BookingAction = "cancelled"
	BookingActivated BookingAction = "activated"
	BookingRejected  BookingAction = "rejected"
)

// BookingEvent captures a reservation lifecycle change.
type BookingEvent struct {
	Action          BookingAction
	ReservationID   string
	StationID       string
	DurationMinutes int
	EstimatedPrice  float64
	Reason          string
	Time            time.Time
}

// SessionAction is the kind of session change being recorded.
type SessionAction string

const (
	SessionStarted SessionAction = "started"
	SessionStopped SessionAction = "stopped"
)

// SessionEvent captures the start or the settlement of a charging session.
type SessionEvent struct {
	Action          SessionAction
	SessionID       string
	StationID       string
	StationName     string
	WalkUp          bool
	DefaultTariff   bool
	DurationMinutes int
	Elapsed         time.Duration
	KWh             float64
	TotalPrice      float64
	Time            time.Time
}

// MetricsSink records booking and session events for observability purposes.
type MetricsSink interface {
	RecordBooking(ev BookingEvent) error
	RecordSession(ev SessionEvent) error
}

// ReviewEvent is a rating attached to a completed session.
type ReviewEvent struct {
	SessionID string
	Rating    int
	Time      time.Time
}

// ReviewRecorder records session reviews.
type ReviewRecorder interface {
	RecordReview(ev ReviewEvent) error
}

// SlotQuery describes one availability lookup.
type SlotQuery struct {
	StationID       string
	DayOffset       int
	DurationMinutes int
	Offered         int
	Fitting         int
}

// SlotQueryRecorder records availability lookups.
type SlotQueryRecorder interface {
	RecordSlotQuery(q SlotQuery) error
}

// NopSink implements MetricsSink with no-op methods.
type NopSink struct{}

func (NopSink) RecordBooking(BookingEvent) error { return nil }
func (NopSink) RecordSession(SessionEvent) error { return nil }
func (NopSink) RecordReview(ReviewEvent) error   { return nil }
func (NopSink) RecordSlotQuery(SlotQuery) error  { return nil }
