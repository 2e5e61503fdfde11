// Package booking drives the reservation flow of one station: pick a day, a
// duration and a start time, confirm the price, then commit.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/smartshift/core/availability"
	"github.com/kilianp07/smartshift/core/model"
	"github.com/kilianp07/smartshift/core/pricing"
)

// State of the booking flow.
type State int

const (
	StateBrowsing State = iota
	StateSlotSelected
	StateConfirming
	StateBooked
	StateCancelled
	StateActivated
)

func (s State) String() string {
	switch s {
	case StateBrowsing:
		return "browsing"
	case StateSlotSelected:
		return "slot_selected"
	case StateConfirming:
		return "confirming"
	case StateBooked:
		return "booked"
	case StateCancelled:
		return "cancelled"
	case StateActivated:
		return "activated"
	}
	return "unknown"
}

// DefaultDuration is preselected when the flow opens.
const DefaultDuration = 60

var (
	ErrWrongState    = errors.New("operation not allowed in current state")
	ErrSlotNotFit    = errors.New("slot does not fit the selected duration")
	ErrBookingExists = errors.New("a reservation or charging session already exists")
)

// Booker is the engine side of the flow.
type Booker interface {
	HasActiveBooking() bool
	Book(ctx context.Context, r model.Reservation) (model.Reservation, error)
	Cancel(ctx context.Context, id string) error
	ScanSuccess(ctx context.Context, hint string) (model.ActiveSession, error)
	Now() time.Time
	Location() *time.Location
}

// Overlay is the booking flow for one station. It is not safe for
// concurrent use; the Booker serialises the commits.
type Overlay struct {
	station  model.Station
	booker   Booker
	resolver availability.Resolver
	calc     pricing.Calculator

	state    State
	day      int
	duration int
	slot     string
	quote    pricing.Breakdown
	booked   model.Reservation
	session  model.ActiveSession
}

// NewOverlay opens the flow on st for today with the default duration.
func NewOverlay(st model.Station, b Booker, r availability.Resolver, calc pricing.Calculator) *Overlay {
	o := &Overlay{station: st, booker: b, resolver: r, calc: calc, duration: DefaultDuration}
	o.quote = calc.Quote(st, o.duration)
	return o
}

func (o *Overlay) State() State { return o.state }
func (o *Overlay) Station() model.Station { return o.station }
func (o *Overlay) Day() int { return o.day }
func (o *Overlay) Duration() int { return o.duration }
func (o *Overlay) Slot() string { return o.slot }
func (o *Overlay) Quote() pricing.Breakdown { return o.quote }
func (o *Overlay) Reservation() model.Reservation { return o.booked }
func (o *Overlay) ActiveSession() model.ActiveSession { return o.session }

// Date is the civil date of the selected day tab.
func (o *Overlay) Date() string {
	return availability.DateForOffset(o.now(), o.day)
}

func (o *Overlay) now() time.Time {
	return o.booker.Now().In(o.booker.Location())
}

// Slots lists the start times offered for the current day and duration.
func (o *Overlay) Slots() ([]availability.Candidate, error) {
	return o.resolver.Resolve(o.station, o.day, o.duration, o.now())
}

func (o *Overlay) editable() bool {
	return o.state == StateBrowsing || o.state == StateSlotSelected
}

// SelectDay switches the day tab and clears the selected slot.
func (o *Overlay) SelectDay(day int) error {
	if !o.editable() {
		return fmt.Errorf("%w: %s", ErrWrongState, o.state)
	}
	if day < 0 || day > availability.MaxDayOffset {
		return availability.ErrInvalidDayOffset
	}
	o.day = day
	o.clearSlot()
	return nil
}

// SelectDuration changes the duration, re-prices and clears the selected
// slot, which may no longer fit.
func (o *Overlay) SelectDuration(minutes int) error {
	if !o.editable() {
		return fmt.Errorf("%w: %s", ErrWrongState, o.state)
	}
	if !model.ValidDuration(minutes) {
		return fmt.Errorf("%w: %d", availability.ErrInvalidDuration, minutes)
	}
	o.duration = minutes
	o.quote = o.calc.Quote(o.station, minutes)
	o.clearSlot()
	return nil
}

func (o *Overlay) clearSlot() {
	o.slot = ""
	o.state = StateBrowsing
}

// SelectSlot picks a start time. Unfit slots, and any slot while a booking
// or session exists, are rejected and leave the state unchanged.
func (o *Overlay) SelectSlot(label string) error {
	if !o.editable() {
		return fmt.Errorf("%w: %s", ErrWrongState, o.state)
	}
	if o.booker.HasActiveBooking() {
		return ErrBookingExists
	}
	cands, err := o.Slots()
	if err != nil {
		return err
	}
	for _, c := range cands {
		if c.Time != label {
			continue
		}
		if !c.Fit {
			return fmt.Errorf("%w: %s (%s)", ErrSlotNotFit, label, c.Reason)
		}
		o.slot = label
		o.state = StateSlotSelected
		return nil
	}
	return fmt.Errorf("%w: %s", availability.ErrSlotNotOffered, label)
}

// Confirm moves to the price confirmation step.
func (o *Overlay) Confirm() error {
	if o.state != StateSlotSelected {
		return fmt.Errorf("%w: %s", ErrWrongState, o.state)
	}
	o.quote = o.calc.Quote(o.station, o.duration)
	o.state = StateConfirming
	return nil
}

// Back steps from Confirming to SlotSelected, and from SlotSelected to
// Browsing.
func (o *Overlay) Back() error {
	switch o.state {
	case StateConfirming:
		o.state = StateSlotSelected
	case StateSlotSelected:
		o.clearSlot()
	default:
		return fmt.Errorf("%w: %s", ErrWrongState, o.state)
	}
	return nil
}

// Commit books the confirmed slot. The booker re-checks the fit against the
// current template; when the slot is gone the flow returns to Browsing.
func (o *Overlay) Commit(ctx context.Context) (model.Reservation, error) {
	if o.state != StateConfirming {
		return model.Reservation{}, fmt.Errorf("%w: %s", ErrWrongState, o.state)
	}
	r := model.Reservation{
		StationID:       o.station.ID,
		StationName:     o.station.Name,
		Date:            o.Date(),
		StartTime:       o.slot,
		DurationMinutes: o.duration,
		EstimatedPrice:  o.quote.Total,
		Status:          model.ReservationActive,
	}
	booked, err := o.booker.Book(ctx, r)
	if err != nil {
		if errors.Is(err, availability.ErrSlotUnavailable) || errors.Is(err, availability.ErrSlotNotOffered) {
			o.clearSlot()
		}
		return model.Reservation{}, err
	}
	o.booked = booked
	o.state = StateBooked
	return booked, nil
}

// Cancel removes the committed reservation.
func (o *Overlay) Cancel(ctx context.Context) error {
	if o.state != StateBooked {
		return fmt.Errorf("%w: %s", ErrWrongState, o.state)
	}
	if err := o.booker.Cancel(ctx, o.booked.ID); err != nil {
		return err
	}
	o.state = StateCancelled
	return nil
}

// Activate turns the committed reservation into a charging session, as a
// successful scan at the station does.
func (o *Overlay) Activate(ctx context.Context) (model.ActiveSession, error) {
	if o.state != StateBooked {
		return model.ActiveSession{}, fmt.Errorf("%w: %s", ErrWrongState, o.state)
	}
	s, err := o.booker.ScanSuccess(ctx, o.booked.ID)
	if err != nil {
		return model.ActiveSession{}, err
	}
	o.session = s
	o.state = StateActivated
	return s, nil
}
