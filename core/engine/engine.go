// Package engine holds the reservation set, the active charging session and
// the charging history behind a single update path. Every committed change
// is written through to the store and published as an Event.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/smartshift/core/availability"
	"github.com/kilianp07/smartshift/core/catalog"
	"github.com/kilianp07/smartshift/core/history"
	"github.com/kilianp07/smartshift/core/logger"
	"github.com/kilianp07/smartshift/core/metrics"
	"github.com/kilianp07/smartshift/core/model"
	"github.com/kilianp07/smartshift/core/monitoring"
	"github.com/kilianp07/smartshift/core/pricing"
	"github.com/kilianp07/smartshift/core/session"
	"github.com/kilianp07/smartshift/core/storage"
	"github.com/kilianp07/smartshift/internal/eventbus"
)

var (
	ErrBookingExists       = errors.New("a reservation or charging session already exists")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrNoReservation       = errors.New(NoticeNoReservation)
	ErrSessionActive       = errors.New("a charging session is already active")
	ErrNoActiveSession     = errors.New("no active charging session")
	ErrSessionNotFound     = errors.New("charging session not found")
	ErrInvalidRating       = errors.New("rating must be between 1 and 5")
)

// Tariff used when the station of a reservation is no longer in the catalog.
const (
	DefaultPowerKW    = 11
	DefaultPriceCents = 45
)

// State is the whole mutable application state.
type State struct {
	Reservations []model.Reservation     `json:"reservations"`
	Active       *model.ActiveSession    `json:"active_session"`
	History      []model.ChargingSession `json:"history"`
	Navigating   bool                    `json:"navigating"`
}

func (s State) clone() State {
	out := State{Navigating: s.Navigating}
	out.Reservations = append(make([]model.Reservation, 0, len(s.Reservations)), s.Reservations...)
	out.History = append(make([]model.ChargingSession, 0, len(s.History)), s.History...)
	if s.Active != nil {
		a := *s.Active
		out.Active = &a
	}
	return out
}

// Fallback is the tariff snapshotted when a station cannot be found.
type Fallback struct {
	PowerKW    float64 `json:"power_kw" yaml:"power_kw"`
	PriceCents float64 `json:"price_cents" yaml:"price_cents"`
}

// Options wires the engine collaborators. Zero values get usable defaults.
type Options struct {
	Store        storage.Store
	Catalog      catalog.Catalog
	Resolver     availability.Resolver
	Calculator   *pricing.Calculator // nil uses the default buffer
	Fallback     Fallback
	Metrics      metrics.MetricsSink
	Logger       logger.Logger
	Location     *time.Location
	TickInterval time.Duration
	Now          func() time.Time
}

type touched uint8

const (
	touchReservations touched = 1 << iota
	touchSession
	touchHistory
)

// Engine is safe for concurrent use. Each operation is indivisible.
type Engine struct {
	mu    sync.Mutex
	state State

	store    storage.Store
	catalog  catalog.Catalog
	resolver availability.Resolver
	calc     pricing.Calculator
	fallback Fallback
	sink     metrics.MetricsSink
	log      logger.Logger
	loc      *time.Location
	interval time.Duration
	now      func() time.Time

	events *eventbus.TypedBus[Event]
	ticks  *eventbus.TypedBus[session.Tick]
	ticker *session.Ticker

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an engine with empty state. Call Load to restore the persisted
// state.
func New(opts Options) *Engine {
	if opts.Store == nil {
		opts.Store = storage.NewMemoryStore()
	}
	if opts.Resolver == (availability.Resolver{}) {
		opts.Resolver = availability.NewResolver(availability.DefaultPolicy())
	}
	calc := pricing.NewCalculator(pricing.DefaultBufferMinutes)
	if opts.Calculator != nil {
		calc = *opts.Calculator
	}
	if opts.Fallback.PowerKW <= 0 {
		opts.Fallback.PowerKW = DefaultPowerKW
	}
	if opts.Fallback.PriceCents <= 0 {
		opts.Fallback.PriceCents = DefaultPriceCents
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NopSink{}
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		state:    State{Reservations: []model.Reservation{}, History: []model.ChargingSession{}},
		store:    opts.Store,
		catalog:  opts.Catalog,
		resolver: opts.Resolver,
		calc:     calc,
		fallback: opts.Fallback,
		sink:     opts.Metrics,
		log:      logger.OrNop(opts.Logger),
		loc:      opts.Location,
		interval: opts.TickInterval,
		now:      opts.Now,
		events:   eventbus.NewTyped[Event](),
		ticks:    eventbus.NewTyped[session.Tick](),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Load restores the three persisted collections. Missing or corrupt values
// fall back to empty defaults. A restored active session resumes ticking.
func (e *Engine) Load(ctx context.Context) error {
	res, _, err := storage.Load(ctx, e.store, storage.KeyReservations, []model.Reservation{})
	if err != nil {
		return err
	}
	active, _, err := storage.Load[*model.ActiveSession](ctx, e.store, storage.KeyActiveSession, nil)
	if err != nil {
		return err
	}
	hist, _, err := storage.Load(ctx, e.store, storage.KeyHistory, []model.ChargingSession{})
	if err != nil {
		return err
	}
	if res == nil {
		res = []model.Reservation{}
	}
	if hist == nil {
		hist = []model.ChargingSession{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopTicker()
	e.state = State{Reservations: res, Active: active, History: hist}
	if active != nil {
		e.startTicker(*active)
	}
	e.log.Infof("state loaded: %d reservations, active session %t, %d history entries", len(res), active != nil, len(hist))
	e.publish(Event{Kind: EventLoaded, Session: active})
	return nil
}

// Close stops the session ticker and closes the event streams.
func (e *Engine) Close() {
	e.mu.Lock()
	e.stopTicker()
	e.mu.Unlock()
	e.cancel()
	e.events.Close()
	e.ticks.Close()
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.clone()
}

// Subscribe returns a channel receiving every committed Event.
func (e *Engine) Subscribe() <-chan Event { return e.events.Subscribe() }

// Unsubscribe releases a channel returned by Subscribe.
func (e *Engine) Unsubscribe(ch <-chan Event) { e.events.Unsubscribe(ch) }

// Events exposes the event bus for eventbus.Listen.
func (e *Engine) Events() *eventbus.TypedBus[Event] { return e.events }

// Ticks returns a channel receiving the per-second session refresh.
func (e *Engine) Ticks() <-chan session.Tick { return e.ticks.Subscribe() }

// UnsubscribeTicks releases a channel returned by Ticks.
func (e *Engine) UnsubscribeTicks(ch <-chan session.Tick) { e.ticks.Unsubscribe(ch) }

// TickEvents exposes the session tick bus for forwarders.
func (e *Engine) TickEvents() *eventbus.TypedBus[session.Tick] { return e.ticks }

// Calculator returns the pricing rules used by the engine.
func (e *Engine) Calculator() pricing.Calculator { return e.calc }

// Resolver returns the availability rules used by the engine.
func (e *Engine) Resolver() availability.Resolver { return e.resolver }

// Now returns the engine clock.
func (e *Engine) Now() time.Time { return e.now() }

// Location returns the zone reservation dates are interpreted in.
func (e *Engine) Location() *time.Location { return e.loc }

// HasActiveBooking reports whether a reservation or a session blocks a new
// booking.
func (e *Engine) HasActiveBooking() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.state.Reservations) > 0 || e.state.Active != nil
}

// Reservations returns the stored reservations.
func (e *Engine) Reservations() []model.Reservation {
	return e.Snapshot().Reservations
}

// ActiveSession returns the live session, if any.
func (e *Engine) ActiveSession() (model.ActiveSession, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Active == nil {
		return model.ActiveSession{}, false
	}
	return *e.state.Active, true
}

// History returns the charging history, newest first.
func (e *Engine) History() []model.ChargingSession {
	return e.Snapshot().History
}

// ActiveReservation returns the reservation with the earliest start.
func (e *Engine) ActiveReservation() (model.Reservation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.earliest()
}

func (e *Engine) earliest() (model.Reservation, bool) {
	if len(e.state.Reservations) == 0 {
		return model.Reservation{}, false
	}
	type keyed struct {
		r     model.Reservation
		start time.Time
		ok    bool
	}
	ks := make([]keyed, len(e.state.Reservations))
	for i, r := range e.state.Reservations {
		t, err := r.Start(e.loc)
		ks[i] = keyed{r: r, start: t, ok: err == nil}
	}
	// unparsable dates sort last
	sort.SliceStable(ks, func(i, j int) bool {
		if ks[i].ok != ks[j].ok {
			return ks[i].ok
		}
		return ks[i].start.Before(ks[j].start)
	})
	return ks[0].r, true
}

// DayOffset converts a civil date into a day tab index relative to today.
func (e *Engine) DayOffset(date string) (int, error) {
	d, err := time.ParseInLocation(model.DateLayout, date, e.loc)
	if err != nil {
		return 0, fmt.Errorf("invalid date %q: %w", date, err)
	}
	now := e.now().In(e.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, e.loc)
	off := int(d.Sub(today).Round(24*time.Hour) / (24 * time.Hour))
	if off < 0 || off > availability.MaxDayOffset {
		return off, fmt.Errorf("%w: %s", availability.ErrInvalidDayOffset, date)
	}
	return off, nil
}

// Book stores a reservation after re-checking that its slot still fits.
// Missing id, station name, status and price are filled in.
func (e *Engine) Book(ctx context.Context, r model.Reservation) (model.Reservation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if !model.ValidDuration(r.DurationMinutes) {
		return model.Reservation{}, fmt.Errorf("%w: %d", availability.ErrInvalidDuration, r.DurationMinutes)
	}
	if err := r.Validate(); err != nil {
		return model.Reservation{}, fmt.Errorf("invalid reservation: %w", err)
	}
	if len(e.state.Reservations) > 0 || e.state.Active != nil {
		e.recordBooking(metrics.BookingRejected, r, "exists")
		return model.Reservation{}, ErrBookingExists
	}
	st, ok := e.station(r.StationID)
	if !ok {
		return model.Reservation{}, fmt.Errorf("%w: %s", catalog.ErrStationNotFound, r.StationID)
	}
	day, err := e.DayOffset(r.Date)
	if err != nil {
		return model.Reservation{}, err
	}
	if err := e.resolver.Check(st, day, r.DurationMinutes, r.StartTime, e.now().In(e.loc)); err != nil {
		e.recordBooking(metrics.BookingRejected, r, "unfit")
		return model.Reservation{}, err
	}
	r.StationName = st.Name
	r.Status = model.ReservationActive
	r.EstimatedPrice = pricing.Round2(e.calc.Quote(st, r.DurationMinutes).Total)

	next := e.state.clone()
	next.Reservations = append(next.Reservations, r)
	e.commit(ctx, next, touchReservations, Event{Kind: EventReservationCreated, Reservation: &r})
	e.recordBooking(metrics.BookingCreated, r, "")
	e.log.Infof("reservation %s booked at %s on %s %s for %d min", r.ID, r.StationID, r.Date, r.StartTime, r.DurationMinutes)
	return r, nil
}

// Cancel removes a reservation. There is no deadline.
func (e *Engine) Cancel(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx := indexOf(e.state.Reservations, id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrReservationNotFound, id)
	}
	r := e.state.Reservations[idx]
	next := e.state.clone()
	next.Reservations = append(next.Reservations[:idx], next.Reservations[idx+1:]...)
	r.Status = model.ReservationCancelled
	e.commit(ctx, next, touchReservations, Event{Kind: EventReservationCanceled, Reservation: &r})
	e.recordBooking(metrics.BookingCancelled, r, "")
	e.log.Infof("reservation %s cancelled", id)
	return nil
}

// ScanSuccess activates the reservation named by hint, or the earliest one
// when hint is empty or unknown. Without any reservation nothing changes and
// ErrNoReservation is returned.
func (e *Engine) ScanSuccess(ctx context.Context, hint string) (model.ActiveSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Active != nil {
		return model.ActiveSession{}, ErrSessionActive
	}
	var (
		res model.Reservation
		ok  bool
	)
	if hint != "" {
		if idx := indexOf(e.state.Reservations, hint); idx >= 0 {
			res, ok = e.state.Reservations[idx], true
		}
	}
	if !ok {
		res, ok = e.earliest()
	}
	if !ok {
		e.log.Warnf("scan without reservation (hint %q)", hint)
		e.publish(Event{Kind: EventNoReservation, Notice: NoticeNoReservation})
		return model.ActiveSession{}, ErrNoReservation
	}

	s, fallback := e.newSession(res.StationID, res.DurationMinutes)
	s.ReservationID = res.ID
	if s.StationName == "" {
		s.StationName = res.StationName
	}

	next := e.state.clone()
	idx := indexOf(next.Reservations, res.ID)
	next.Reservations = append(next.Reservations[:idx], next.Reservations[idx+1:]...)
	next.Active = &s
	next.Navigating = false
	e.commit(ctx, next, touchReservations|touchSession, Event{Kind: EventSessionStarted, Reservation: &res, Session: &s})
	e.startTicker(s)

	res.Status = model.ReservationCompleted
	e.recordBooking(metrics.BookingActivated, res, "")
	e.recordSession(metrics.SessionEvent{Action: metrics.SessionStarted, SessionID: s.ID, StationID: s.StationID,
		StationName: s.StationName, DefaultTariff: fallback,
		DurationMinutes: s.DurationMinutes, Time: s.StartTime})
	e.log.Infof("reservation %s activated as session %s", res.ID, s.ID)
	return s, nil
}

// StartWalkUp opens a session at a station without a reservation.
func (e *Engine) StartWalkUp(ctx context.Context, stationID string, minutes int) (model.ActiveSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Active != nil {
		return model.ActiveSession{}, ErrSessionActive
	}
	if len(e.state.Reservations) > 0 {
		return model.ActiveSession{}, ErrBookingExists
	}
	if !model.ValidDuration(minutes) {
		return model.ActiveSession{}, fmt.Errorf("%w: %d", availability.ErrInvalidDuration, minutes)
	}
	if _, ok := e.station(stationID); !ok {
		return model.ActiveSession{}, fmt.Errorf("%w: %s", catalog.ErrStationNotFound, stationID)
	}
	s, _ := e.newSession(stationID, minutes)

	next := e.state.clone()
	next.Active = &s
	next.Navigating = false
	e.commit(ctx, next, touchSession, Event{Kind: EventSessionStarted, Session: &s})
	e.startTicker(s)
	e.recordSession(metrics.SessionEvent{Action: metrics.SessionStarted, SessionID: s.ID, StationID: s.StationID,
		StationName: s.StationName, WalkUp: true, DurationMinutes: s.DurationMinutes, Time: s.StartTime})
	e.log.Infof("walk-up session %s started at %s for %d min", s.ID, stationID, minutes)
	return s, nil
}

// Stop settles the live session, prepends it to the history and clears
// navigation. The booked duration is billed in full.
func (e *Engine) Stop(ctx context.Context) (model.ChargingSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Active == nil {
		return model.ChargingSession{}, ErrNoActiveSession
	}
	s := *e.state.Active
	e.stopTicker()
	done := session.Settle(s, e.calc)

	next := e.state.clone()
	next.Active = nil
	next.History = append([]model.ChargingSession{done}, next.History...)
	next.Navigating = false
	e.commit(ctx, next, touchSession|touchHistory, Event{Kind: EventSessionStopped, Session: &s, Completed: &done})

	e.recordSession(metrics.SessionEvent{Action: metrics.SessionStopped, SessionID: s.ID, StationID: s.StationID,
		StationName: s.StationName, WalkUp: s.ReservationID == "", DurationMinutes: s.DurationMinutes,
		Elapsed: session.Elapsed(s, e.now()), KWh: done.KWh, TotalPrice: done.TotalPrice, Time: e.now()})
	e.log.Infof("session %s stopped: %.2f kWh, %.2f EUR", s.ID, done.KWh, done.TotalPrice)
	return done, nil
}

// Review attaches a 1 to 5 rating and optional feedback to a history entry.
func (e *Engine) Review(ctx context.Context, id string, rating int, feedback string) (model.ChargingSession, error) {
	if rating < 1 || rating > 5 {
		return model.ChargingSession{}, ErrInvalidRating
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	idx := history.Find(e.state.History, id)
	if idx < 0 {
		return model.ChargingSession{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	next := e.state.clone()
	next.History[idx].Rating = rating
	next.History[idx].Feedback = feedback
	cs := next.History[idx]
	e.commit(ctx, next, touchHistory, Event{Kind: EventSessionReviewed, Completed: &cs})
	if rec, ok := e.sink.(metrics.ReviewRecorder); ok {
		if err := rec.RecordReview(metrics.ReviewEvent{SessionID: id, Rating: rating, Time: e.now()}); err != nil {
			e.log.Warnf("record review: %v", err)
		}
	}
	return cs, nil
}

// SeedHistory installs h when the history is empty. It reports whether the
// history was replaced.
func (e *Engine) SeedHistory(ctx context.Context, h []model.ChargingSession) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.state.History) > 0 || len(h) == 0 {
		return false
	}
	next := e.state.clone()
	next.History = history.NewestFirst(h)
	e.commit(ctx, next, touchHistory, Event{Kind: EventHistoryReplaced})
	return true
}

// SetNavigating toggles the navigation-following flag.
func (e *Engine) SetNavigating(ctx context.Context, on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Navigating == on {
		return
	}
	next := e.state.clone()
	next.Navigating = on
	e.commit(ctx, next, 0, Event{Kind: EventNavigationChanged, Navigating: on})
}

// newSession snapshots the station tariff. It reports whether the fallback
// tariff had to be used.
func (e *Engine) newSession(stationID string, minutes int) (model.ActiveSession, bool) {
	now := e.now()
	s := model.ActiveSession{
		ID:              uuid.NewString(),
		StationID:       stationID,
		StartTime:       now,
		EndTime:         now.Add(time.Duration(minutes) * time.Minute),
		DurationMinutes: minutes,
	}
	if st, ok := e.station(stationID); ok {
		s.StationName, s.Address = st.Name, st.Address
		s.PowerKW, s.PriceCents, s.ParkingFee = st.PowerKW, st.PriceCents, st.ParkingFee
		return s, false
	}
	e.log.Warnf("station %s not in catalog, using default tariff %.0f kW / %.0f ct", stationID, e.fallback.PowerKW, e.fallback.PriceCents)
	s.Address = "Station ID: " + stationID
	s.PowerKW, s.PriceCents = e.fallback.PowerKW, e.fallback.PriceCents
	return s, true
}

func (e *Engine) station(id string) (model.Station, bool) {
	if e.catalog == nil {
		return model.Station{}, false
	}
	return e.catalog.Station(id)
}

// commit installs next, writes the touched collections through to the store
// as one batch and publishes ev. Store failures are reported but never undo
// the change.
func (e *Engine) commit(ctx context.Context, next State, t touched, ev Event) {
	e.state = next
	if ops, err := writes(next, t); err != nil {
		e.reportPersist(err)
	} else if len(ops) > 0 {
		if err := storage.Apply(ctx, e.store, ops); err != nil {
			e.reportPersist(err)
		}
	}
	e.publish(ev)
}

// writes lists the touched collections with the newly created record first:
// the history before the session it settles, the session before the
// reservation it consumes.
func writes(next State, t touched) ([]storage.Op, error) {
	var ops []storage.Op
	add := func(key string, v any) error {
		op, err := storage.SetOp(key, v)
		if err != nil {
			return err
		}
		ops = append(ops, op)
		return nil
	}
	if t&touchHistory != 0 {
		if err := add(storage.KeyHistory, next.History); err != nil {
			return nil, err
		}
	}
	if t&touchSession != 0 {
		if next.Active == nil {
			ops = append(ops, storage.DeleteOp(storage.KeyActiveSession))
		} else if err := add(storage.KeyActiveSession, next.Active); err != nil {
			return nil, err
		}
	}
	if t&touchReservations != 0 {
		if err := add(storage.KeyReservations, next.Reservations); err != nil {
			return nil, err
		}
	}
	return ops, nil
}

func (e *Engine) reportPersist(err error) {
	e.log.Errorf("persist: %v", err)
	monitoring.Capture("engine", "persist", err)
}

func (e *Engine) publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = e.now()
	}
	e.events.Publish(ev)
}

func (e *Engine) startTicker(s model.ActiveSession) {
	e.ticker = session.NewTicker(s, e.ticks, e.interval, e.now)
	e.ticker.Start(e.ctx)
}

func (e *Engine) stopTicker() {
	if e.ticker != nil {
		e.ticker.Stop()
		e.ticker = nil
	}
}

// TickerRunning reports whether a session ticker is alive.
func (e *Engine) TickerRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ticker != nil
}

func (e *Engine) recordBooking(action metrics.BookingAction, r model.Reservation, reason string) {
	ev := metrics.BookingEvent{Action: action, ReservationID: r.ID, StationID: r.StationID,
		DurationMinutes: r.DurationMinutes, EstimatedPrice: r.EstimatedPrice, Reason: reason, Time: e.now()}
	if err := e.sink.RecordBooking(ev); err != nil {
		e.log.Warnf("record booking: %v", err)
	}
}

func (e *Engine) recordSession(ev metrics.SessionEvent) {
	if err := e.sink.RecordSession(ev); err != nil {
		e.log.Warnf("record session: %v", err)
	}
}

func indexOf(rs []model.Reservation, id string) int {
	for i, r := range rs {
		if r.ID == id {
			return i
		}
	}
	return -1
}
