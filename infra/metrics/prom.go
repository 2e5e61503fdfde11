package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/smartshift/core/metrics"
)

// PromSink records booking and session events in Prometheus metrics.
type PromSink struct {
	bookings *prometheus.CounterVec
	sessions *prometheus.CounterVec
	energy   *prometheus.HistogramVec
	revenue  *prometheus.HistogramVec
	ratings  *prometheus.HistogramVec
	slots    *prometheus.HistogramVec
}

// NewPromSink registers the metrics on the default Prometheus registerer.
// The /metrics endpoint is started separately with StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartshift_booking_events_total",
			Help: "Reservation lifecycle changes",
		}, []string{"station_id", "action"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartshift_session_events_total",
			Help: "Charging session starts and stops",
		}, []string{"station_id", "action", "walk_up", "default_tariff"}),
		energy: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "smartshift_session_energy_kwh",
			Help:    "Energy billed per completed session",
			Buckets: []float64{5, 10, 20, 40, 80, 160},
		}, []string{"station_id"}),
		revenue: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "smartshift_session_price_eur",
			Help:    "Total price per completed session",
			Buckets: []float64{2, 5, 10, 20, 50, 100},
		}, []string{"station_id"}),
		ratings: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "smartshift_session_rating",
			Help:    "Ratings given to completed sessions",
			Buckets: []float64{1, 2, 3, 4, 5},
		}, nil),
		slots: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "smartshift_slot_query_fitting",
			Help:    "Fitting start times returned per availability lookup",
			Buckets: prometheus.LinearBuckets(0, 4, 8),
		}, []string{"station_id", "day"}),
	}
	var err error
	if s.bookings, err = register(reg, s.bookings); err != nil {
		return nil, err
	}
	if s.sessions, err = register(reg, s.sessions); err != nil {
		return nil, err
	}
	if s.energy, err = register(reg, s.energy); err != nil {
		return nil, err
	}
	if s.revenue, err = register(reg, s.revenue); err != nil {
		return nil, err
	}
	if s.ratings, err = register(reg, s.ratings); err != nil {
		return nil, err
	}
	if s.slots, err = register(reg, s.slots); err != nil {
		return nil, err
	}
	return s, nil
}

// register returns the already registered collector when c was registered
// before, so several sinks can share one registry.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordBooking increments the booking counter.
func (s *PromSink) RecordBooking(ev coremetrics.BookingEvent) error {
	s.bookings.WithLabelValues(ev.StationID, string(ev.Action)).Inc()
	return nil
}

// RecordSession counts the event and observes the billed amounts on stop.
func (s *PromSink) RecordSession(ev coremetrics.SessionEvent) error {
	s.sessions.WithLabelValues(ev.StationID, string(ev.Action),
		strconv.FormatBool(ev.WalkUp), strconv.FormatBool(ev.DefaultTariff)).Inc()
	if ev.Action == coremetrics.SessionStopped {
		s.energy.WithLabelValues(ev.StationID).Observe(ev.KWh)
		s.revenue.WithLabelValues(ev.StationID).Observe(ev.TotalPrice)
	}
	return nil
}

// RecordReview observes the rating.
func (s *PromSink) RecordReview(ev coremetrics.ReviewEvent) error {
	s.ratings.WithLabelValues().Observe(float64(ev.Rating))
	return nil
}

// RecordSlotQuery observes how many start times fit.
func (s *PromSink) RecordSlotQuery(q coremetrics.SlotQuery) error {
	s.slots.WithLabelValues(q.StationID, strconv.Itoa(q.DayOffset)).Observe(float64(q.Fitting))
	return nil
}
