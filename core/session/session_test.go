package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/smartshift/core/model"
	"github.com/kilianp07/smartshift/core/pricing"
	"github.com/kilianp07/smartshift/internal/eventbus"
)

func twoHours(start time.Time) model.ActiveSession {
	return model.ActiveSession{
		ID: "s1", StationID: "e1", StationName: "Villa Bogenhausen Charge", Address: "Möhlstraße 12",
		StartTime: start, EndTime: start.Add(2 * time.Hour), DurationMinutes: 120,
		PowerKW: 22, PriceCents: 30, ParkingFee: 2.24,
	}
}

func TestElapsedRemainingProgress(t *testing.T) {
	start := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	s := twoHours(start)

	assert.Equal(t, time.Duration(0), Elapsed(s, start.Add(-time.Minute)))
	assert.Equal(t, 0.0, Progress(s, start.Add(-time.Minute)))
	assert.Equal(t, 30*time.Minute, Elapsed(s, start.Add(30*time.Minute)))
	assert.Equal(t, 90*time.Minute, Remaining(s, start.Add(30*time.Minute)))
	assert.InDelta(t, 0.25, Progress(s, start.Add(30*time.Minute)), 1e-9)
	assert.Equal(t, 1.0, Progress(s, start.Add(3*time.Hour)))
	assert.Equal(t, time.Duration(0), Remaining(s, start.Add(3*time.Hour)))

	s.EndTime = s.StartTime
	assert.Equal(t, 1.0, Progress(s, start))
}

func TestSettleBillsBookedDuration(t *testing.T) {
	start := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	s := twoHours(start)
	got := Settle(s, pricing.NewCalculator(pricing.DefaultBufferMinutes))
	assert.Equal(t, "s1", got.ID)
	assert.Equal(t, 42.17, got.KWh)
	assert.Equal(t, 14.89, got.TotalPrice)
	assert.Equal(t, 120, got.DurationMinutes)
	assert.Equal(t, start, got.Date)
	assert.False(t, got.Rated())
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "00:00", FormatElapsed(-time.Second))
	assert.Equal(t, "00:59", FormatElapsed(59*time.Second))
	assert.Equal(t, "12:05", FormatElapsed(12*time.Minute+5*time.Second))
	assert.Equal(t, "1:00:00", FormatElapsed(time.Hour))
	assert.Equal(t, "2:03:04", FormatElapsed(2*time.Hour+3*time.Minute+4*time.Second))
}

func TestTickerPublishesUntilStopped(t *testing.T) {
	start := time.Now()
	bus := eventbus.NewTyped[Tick]()
	defer bus.Close()
	ch := bus.Subscribe()

	tk := NewTicker(twoHours(start), bus, 5*time.Millisecond, nil)
	tk.Start(context.Background())

	for i := 0; i < 3; i++ {
		select {
		case ev := <-ch:
			assert.Equal(t, "s1", ev.SessionID)
			assert.GreaterOrEqual(t, ev.Progress, 0.0)
		case <-time.After(time.Second):
			t.Fatalf("no tick received")
		}
	}
	tk.Stop()
	tk.Stop()

	// drain what was buffered before the stop, then expect silence
	for len(ch) > 0 {
		<-ch
	}
	select {
	case <-ch:
		t.Fatalf("tick after stop")
	case <-time.After(30 * time.Millisecond):
	}
}

func TestTickerStopsWithContext(t *testing.T) {
	bus := eventbus.NewTyped[Tick]()
	defer bus.Close()
	ctx, cancel := context.WithCancel(context.Background())
	tk := NewTicker(twoHours(time.Now()), bus, 0, nil)
	assert.Equal(t, DefaultInterval, tk.interval)
	tk.Start(ctx)
	cancel()
	done := make(chan struct{})
	go func() { tk.Stop(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("ticker did not exit")
	}
}

func TestTickerStopWithoutStart(t *testing.T) {
	tk := NewTicker(twoHours(time.Now()), eventbus.NewTyped[Tick](), time.Second, nil)
	require.NotPanics(t, tk.Stop)
	assert.Equal(t, "s1", tk.SessionID())
}
