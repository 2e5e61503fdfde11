package metrics

import "errors"

// MultiSink fans events out to multiple sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordBooking forwards the event to every sink and joins their errors.
func (m *MultiSink) RecordBooking(ev BookingEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		errs = append(errs, s.RecordBooking(ev))
	}
	return errors.Join(errs...)
}

// RecordSession forwards the event to every sink and joins their errors.
func (m *MultiSink) RecordSession(ev SessionEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		errs = append(errs, s.RecordSession(ev))
	}
	return errors.Join(errs...)
}

// RecordReview forwards reviews to the sinks that support them.
func (m *MultiSink) RecordReview(ev ReviewEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(ReviewRecorder); ok {
			errs = append(errs, rec.RecordReview(ev))
		}
	}
	return errors.Join(errs...)
}

// RecordSlotQuery forwards lookups to the sinks that support them.
func (m *MultiSink) RecordSlotQuery(q SlotQuery) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(SlotQueryRecorder); ok {
			errs = append(errs, rec.RecordSlotQuery(q))
		}
	}
	return errors.Join(errs...)
}
