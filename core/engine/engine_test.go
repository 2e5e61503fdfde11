package engine

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/smartshift/core/availability"
	"github.com/kilianp07/smartshift/core/catalog"
	"github.com/kilianp07/smartshift/core/metrics"
	"github.com/kilianp07/smartshift/core/model"
	"github.com/kilianp07/smartshift/core/storage"
)

var clock = time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)

func freeSlots() []model.SlotState {
	s := make([]model.SlotState, model.SlotsPerDay)
	for i := range s {
		s[i] = model.SlotFree
	}
	return s
}

func testCatalog(t *testing.T) *catalog.Memory {
	t.Helper()
	busy := freeSlots()
	busy[24] = model.SlotBusy // 12:00
	m, err := catalog.NewMemory([]model.Station{
		{ID: "e1", Name: "Villa Bogenhausen Charge", Address: "Prinzregentenstraße 150", PowerKW: 22, PriceCents: 30,
			ParkingFee: 2.24, Status: model.StationAvailable, Availability: freeSlots()},
		{ID: "e2", Name: "Haidhausen Hinterhof", PowerKW: 11, PriceCents: 30, ParkingFee: 1.65,
			Status: model.StationBusy, Availability: busy},
	})
	require.NoError(t, err)
	return m
}

type countingSink struct {
	mu       sync.Mutex
	bookings []metrics.BookingEvent
	sessions []metrics.SessionEvent
}

func (c *countingSink) RecordBooking(ev metrics.BookingEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bookings = append(c.bookings, ev)
	return nil
}

func (c *countingSink) RecordSession(ev metrics.SessionEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions = append(c.sessions, ev)
	return nil
}

func newEngine(t *testing.T, store storage.Store) (*Engine, *countingSink) {
	t.Helper()
	sink := &countingSink{}
	e := New(Options{
		Store:    store,
		Catalog:  testCatalog(t),
		Metrics:  sink,
		Location: time.UTC,
		Now:      func() time.Time { return clock },
	})
	require.NoError(t, e.Load(context.Background()))
	t.Cleanup(e.Close)
	return e, sink
}

func reservation(station, start string, minutes int) model.Reservation {
	return model.Reservation{StationID: station, Date: "2025-06-02", StartTime: start, DurationMinutes: minutes}
}

func TestBookFillsAndPersists(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	e, sink := newEngine(t, store)

	r, err := e.Book(ctx, reservation("e1", "10:00", 120))
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, "Villa Bogenhausen Charge", r.StationName)
	assert.Equal(t, model.ReservationActive, r.Status)
	assert.Equal(t, 14.89, r.EstimatedPrice)
	assert.True(t, e.HasActiveBooking())

	got, ok := e.ActiveReservation()
	require.True(t, ok)
	assert.Equal(t, r.ID, got.ID)

	persisted, found, err := storage.Load(ctx, store, storage.KeyReservations, []model.Reservation{})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []model.Reservation{r}, persisted)

	_, err = e.Book(ctx, reservation("e1", "14:00", 60))
	assert.ErrorIs(t, err, ErrBookingExists)
	require.Len(t, sink.bookings, 2)
	assert.Equal(t, metrics.BookingRejected, sink.bookings[1].Action)
}

func TestBookRechecksFit(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, nil)

	_, err := e.Book(ctx, reservation("e2", "11:30", 60))
	assert.ErrorIs(t, err, availability.ErrSlotUnavailable)
	_, err = e.Book(ctx, reservation("e1", "07:30", 60))
	assert.ErrorIs(t, err, availability.ErrSlotNotOffered, "past slot of today")
	_, err = e.Book(ctx, reservation("e1", "10:00", 45))
	assert.ErrorIs(t, err, availability.ErrInvalidDuration)
	_, err = e.Book(ctx, reservation("zz", "10:00", 60))
	assert.ErrorIs(t, err, catalog.ErrStationNotFound)

	r := reservation("e1", "10:00", 60)
	r.Date = "2025-06-09"
	_, err = e.Book(ctx, r)
	assert.ErrorIs(t, err, availability.ErrInvalidDayOffset)
	assert.Empty(t, e.Reservations())
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, nil)
	assert.ErrorIs(t, e.Cancel(ctx, "nope"), ErrReservationNotFound)

	r, err := e.Book(ctx, reservation("e1", "10:00", 60))
	require.NoError(t, err)
	events := e.Subscribe()
	require.NoError(t, e.Cancel(ctx, r.ID))
	assert.Empty(t, e.Reservations())
	ev := <-events
	assert.Equal(t, EventReservationCanceled, ev.Kind)
	assert.Equal(t, model.ReservationCancelled, ev.Reservation.Status)
}

func TestScanSuccessActivatesAtomically(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	e, _ := newEngine(t, store)
	e.SetNavigating(ctx, true)

	r, err := e.Book(ctx, reservation("e1", "10:00", 120))
	require.NoError(t, err)
	events := e.Subscribe()

	s, err := e.ScanSuccess(ctx, r.ID)
	require.NoError(t, err)

	snap := e.Snapshot()
	assert.Empty(t, snap.Reservations)
	require.NotNil(t, snap.Active)
	assert.Equal(t, "e1", snap.Active.StationID)
	assert.Equal(t, r.ID, snap.Active.ReservationID)
	assert.False(t, snap.Navigating)
	assert.Equal(t, clock, s.StartTime)
	assert.Equal(t, clock.Add(2*time.Hour), s.EndTime)
	assert.Equal(t, 22.0, s.PowerKW)
	assert.Equal(t, 30.0, s.PriceCents)
	assert.Equal(t, 2.24, s.ParkingFee)
	assert.True(t, e.TickerRunning())

	ev := <-events
	assert.Equal(t, EventSessionStarted, ev.Kind)
	assert.Equal(t, r.ID, ev.Reservation.ID)

	stored, found, err := storage.Load[*model.ActiveSession](ctx, store, storage.KeyActiveSession, nil)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, s.ID, stored.ID)
	res, _, err := storage.Load(ctx, store, storage.KeyReservations, []model.Reservation{})
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestScanSuccessFallsBackToEarliest(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, storage.Save(ctx, store, storage.KeyReservations, []model.Reservation{
		{ID: "late", StationID: "e1", Date: "2025-06-03", StartTime: "09:00", DurationMinutes: 60},
		{ID: "early", StationID: "e1", Date: "2025-06-02", StartTime: "18:00", DurationMinutes: 60},
	}))
	e, _ := newEngine(t, store)

	s, err := e.ScanSuccess(ctx, "unknown-hint")
	require.NoError(t, err)
	assert.Equal(t, "early", s.ReservationID)
	require.Len(t, e.Reservations(), 1)
	assert.Equal(t, "late", e.Reservations()[0].ID)
}

func TestScanSuccessWithoutReservationIsSoftFailure(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, nil)
	events := e.Subscribe()
	before := e.Snapshot()

	_, err := e.ScanSuccess(ctx, "")
	assert.ErrorIs(t, err, ErrNoReservation)
	_, err = e.ScanSuccess(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNoReservation)

	assert.Equal(t, before, e.Snapshot())
	assert.False(t, e.TickerRunning())
	ev := <-events
	assert.Equal(t, EventNoReservation, ev.Kind)
	assert.Equal(t, NoticeNoReservation, ev.Notice)
}

func TestScanSuccessUnknownStationUsesDefaults(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, storage.Save(ctx, store, storage.KeyReservations, []model.Reservation{
		{ID: "r1", StationID: "gone", StationName: "Old Yard", Date: "2025-06-02", StartTime: "10:00", DurationMinutes: 60},
	}))
	e, sink := newEngine(t, store)

	s, err := e.ScanSuccess(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, float64(DefaultPowerKW), s.PowerKW)
	assert.Equal(t, float64(DefaultPriceCents), s.PriceCents)
	assert.Equal(t, 0.0, s.ParkingFee)
	assert.Equal(t, "Old Yard", s.StationName)
	assert.Equal(t, "Station ID: gone", s.Address)
	require.Len(t, sink.sessions, 1)
	assert.True(t, sink.sessions[0].DefaultTariff)
}

func TestStopSettlesBookedDuration(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	e, sink := newEngine(t, store)

	r, err := e.Book(ctx, reservation("e1", "10:00", 120))
	require.NoError(t, err)
	s, err := e.ScanSuccess(ctx, r.ID)
	require.NoError(t, err)
	e.SetNavigating(ctx, true)

	done, err := e.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, s.ID, done.ID)
	assert.Equal(t, 42.17, done.KWh)
	assert.Equal(t, 14.89, done.TotalPrice)
	assert.Equal(t, s.StartTime, done.Date)

	snap := e.Snapshot()
	assert.Nil(t, snap.Active)
	assert.False(t, snap.Navigating)
	require.Len(t, snap.History, 1)
	assert.Equal(t, done, snap.History[0])
	assert.False(t, e.TickerRunning())

	_, err = store.Get(ctx, storage.KeyActiveSession)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = e.Stop(ctx)
	assert.ErrorIs(t, err, ErrNoActiveSession)

	last := sink.sessions[len(sink.sessions)-1]
	assert.Equal(t, metrics.SessionStopped, last.Action)
	assert.Equal(t, 14.89, last.TotalPrice)
}

func TestStopPrependsHistory(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, nil)
	for i := 0; i < 2; i++ {
		_, err := e.StartWalkUp(ctx, "e1", 60)
		require.NoError(t, err)
		_, err = e.Stop(ctx)
		require.NoError(t, err)
	}
	_, err := e.StartWalkUp(ctx, "e2", 30)
	require.NoError(t, err)
	done, err := e.Stop(ctx)
	require.NoError(t, err)
	h := e.History()
	require.Len(t, h, 3)
	assert.Equal(t, done.ID, h[0].ID)
}

func TestWalkUp(t *testing.T) {
	ctx := context.Background()
	e, sink := newEngine(t, nil)

	_, err := e.StartWalkUp(ctx, "e1", 45)
	assert.ErrorIs(t, err, availability.ErrInvalidDuration)
	_, err = e.StartWalkUp(ctx, "zz", 60)
	assert.ErrorIs(t, err, catalog.ErrStationNotFound)

	s, err := e.StartWalkUp(ctx, "e1", 90)
	require.NoError(t, err)
	assert.Empty(t, s.ReservationID)
	assert.Equal(t, clock.Add(90*time.Minute), s.EndTime)
	require.Len(t, sink.sessions, 1)
	assert.True(t, sink.sessions[0].WalkUp)

	_, err = e.StartWalkUp(ctx, "e1", 60)
	assert.ErrorIs(t, err, ErrSessionActive)
	_, err = e.Book(ctx, reservation("e1", "14:00", 60))
	assert.ErrorIs(t, err, ErrBookingExists)
}

func TestWalkUpBlockedByReservation(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, nil)
	_, err := e.Book(ctx, reservation("e1", "10:00", 60))
	require.NoError(t, err)
	_, err = e.StartWalkUp(ctx, "e1", 60)
	assert.ErrorIs(t, err, ErrBookingExists)
}

func TestReview(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, nil)
	_, err := e.StartWalkUp(ctx, "e1", 60)
	require.NoError(t, err)
	done, err := e.Stop(ctx)
	require.NoError(t, err)

	_, err = e.Review(ctx, done.ID, 0, "")
	assert.ErrorIs(t, err, ErrInvalidRating)
	_, err = e.Review(ctx, done.ID, 6, "")
	assert.ErrorIs(t, err, ErrInvalidRating)
	_, err = e.Review(ctx, "nope", 4, "")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	cs, err := e.Review(ctx, done.ID, 5, "Alles super!")
	require.NoError(t, err)
	assert.Equal(t, 5, cs.Rating)
	assert.Equal(t, "Alles super!", e.History()[0].Feedback)
}

// Random activate/stop sequences never leave more than one session and
// always account for every stop in the history.
func TestSingleActiveSessionUnderRandomOps(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, nil)
	rng := rand.New(rand.NewSource(11))
	stops := 0
	for i := 0; i < 300; i++ {
		switch rng.Intn(4) {
		case 0:
			_, err := e.StartWalkUp(ctx, "e1", 60)
			if err != nil {
				assert.True(t, errors.Is(err, ErrSessionActive) || errors.Is(err, ErrBookingExists))
			}
		case 1:
			if _, err := e.Book(ctx, reservation("e1", "10:00", 60)); err != nil {
				assert.ErrorIs(t, err, ErrBookingExists)
			}
		case 2:
			if _, err := e.ScanSuccess(ctx, ""); err != nil {
				assert.True(t, errors.Is(err, ErrSessionActive) || errors.Is(err, ErrNoReservation))
			}
		case 3:
			if _, err := e.Stop(ctx); err == nil {
				stops++
			}
		}
		snap := e.Snapshot()
		assert.LessOrEqual(t, len(snap.Reservations), 1)
		assert.Equal(t, snap.Active != nil, e.TickerRunning())
	}
	assert.Len(t, e.History(), stops)
}

func TestConcurrentActivationAdmitsOneSession(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, nil)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.StartWalkUp(ctx, "e1", 60); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestLoadRestoresAndDefaults(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, store.Set(ctx, storage.KeyReservations, []byte("garbage")))
	require.NoError(t, storage.Save(ctx, store, storage.KeyActiveSession, &model.ActiveSession{
		ID: "s1", StationID: "e1", StartTime: clock, EndTime: clock.Add(time.Hour), DurationMinutes: 60,
	}))
	e, _ := newEngine(t, store)

	snap := e.Snapshot()
	assert.NotNil(t, snap.Reservations)
	assert.Empty(t, snap.Reservations)
	require.NotNil(t, snap.Active)
	assert.Equal(t, "s1", snap.Active.ID)
	assert.True(t, e.TickerRunning())

	ticks := e.Ticks()
	select {
	case tk := <-ticks:
		assert.Equal(t, "s1", tk.SessionID)
	case <-time.After(3 * time.Second):
		t.Fatal("restored session does not tick")
	}
}

func TestSeedHistoryOnlyWhenEmpty(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, nil)
	h := []model.ChargingSession{
		{ID: "a", Date: clock.Add(-48 * time.Hour)},
		{ID: "b", Date: clock.Add(-24 * time.Hour)},
	}
	assert.True(t, e.SeedHistory(ctx, h))
	assert.Equal(t, "b", e.History()[0].ID)
	assert.False(t, e.SeedHistory(ctx, h[:1]))
	assert.Len(t, e.History(), 2)
}

func TestDayOffset(t *testing.T) {
	e, _ := newEngine(t, nil)
	for date, want := range map[string]int{"2025-06-02": 0, "2025-06-03": 1, "2025-06-04": 2} {
		got, err := e.DayOffset(date)
		require.NoError(t, err)
		assert.Equal(t, want, got, date)
	}
	_, err := e.DayOffset("2025-06-01")
	assert.ErrorIs(t, err, availability.ErrInvalidDayOffset)
	_, err = e.DayOffset("junk")
	assert.Error(t, err)
}

// keyFailStore is a plain Store (no batch support) whose writes to one key
// fail.
type keyFailStore struct {
	inner *storage.MemoryStore
	key   string
}

func (s *keyFailStore) Get(ctx context.Context, key string) ([]byte, error) {
	return s.inner.Get(ctx, key)
}

func (s *keyFailStore) Set(ctx context.Context, key string, value []byte) error {
	if key == s.key {
		return errors.New("disk full")
	}
	return s.inner.Set(ctx, key, value)
}

func (s *keyFailStore) Delete(ctx context.Context, key string) error {
	if key == s.key {
		return errors.New("disk full")
	}
	return s.inner.Delete(ctx, key)
}

func reload(t *testing.T, store storage.Store) State {
	t.Helper()
	e, _ := newEngine(t, store)
	return e.Snapshot()
}

func TestFailedSessionWriteKeepsStoredReservation(t *testing.T) {
	ctx := context.Background()
	store := &keyFailStore{inner: storage.NewMemoryStore(), key: storage.KeyActiveSession}
	e, _ := newEngine(t, store)

	r, err := e.Book(ctx, reservation("e1", "10:00", 60))
	require.NoError(t, err)
	_, err = e.ScanSuccess(ctx, r.ID)
	require.NoError(t, err)
	require.NotNil(t, e.Snapshot().Active)

	stored := reload(t, store)
	assert.Nil(t, stored.Active)
	require.Len(t, stored.Reservations, 1)
	assert.Equal(t, r.ID, stored.Reservations[0].ID)
}

func TestFailedHistoryWriteKeepsStoredSession(t *testing.T) {
	ctx := context.Background()
	store := &keyFailStore{inner: storage.NewMemoryStore(), key: storage.KeyHistory}
	e, _ := newEngine(t, store)

	s, err := e.StartWalkUp(ctx, "e1", 60)
	require.NoError(t, err)
	_, err = e.Stop(ctx)
	require.NoError(t, err)
	assert.Len(t, e.Snapshot().History, 1)

	stored := reload(t, store)
	require.NotNil(t, stored.Active)
	assert.Equal(t, s.ID, stored.Active.ID)
	assert.Empty(t, stored.History)
}

func TestActivationWritesOneBatch(t *testing.T) {
	ctx := context.Background()
	store := &batchStore{MemoryStore: storage.NewMemoryStore()}
	e, _ := newEngine(t, store)

	r, err := e.Book(ctx, reservation("e1", "10:00", 60))
	require.NoError(t, err)
	_, err = e.ScanSuccess(ctx, r.ID)
	require.NoError(t, err)

	require.Len(t, store.batches, 2)
	assert.Equal(t, []string{storage.KeyActiveSession, storage.KeyReservations}, store.batches[1])
}

type batchStore struct {
	*storage.MemoryStore
	batches [][]string
}

func (s *batchStore) Apply(ctx context.Context, ops []storage.Op) error {
	keys := make([]string, len(ops))
	for i, op := range ops {
		keys[i] = op.Key
	}
	s.batches = append(s.batches, keys)
	return s.MemoryStore.Apply(ctx, ops)
}
