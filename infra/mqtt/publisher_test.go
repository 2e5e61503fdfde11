package mqtt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/smartshift/core/engine"
	"github.com/kilianp07/smartshift/core/model"
	"github.com/kilianp07/smartshift/core/session"
	"github.com/kilianp07/smartshift/internal/eventbus"
)

type sent struct {
	suffix   string
	retained bool
	v        any
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []sent
}

func (f *fakePublisher) PublishJSON(suffix, _ string, retained bool, v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, sent{suffix, retained, v})
	return nil
}

func (f *fakePublisher) suffixes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.msgs))
	for i, m := range f.msgs {
		out[i] = m.suffix
	}
	return out
}

func TestStartEventPublisher(t *testing.T) {
	pub := &fakePublisher{}
	events := eventbus.NewTyped[engine.Event]()
	ticks := eventbus.NewTyped[session.Tick]()
	ctx, cancel := context.WithCancel(context.Background())
	done := StartEventPublisher(ctx, pub, events, ticks, nil)

	s := &model.ActiveSession{ID: "s1"}
	events.Publish(engine.Event{Kind: engine.EventSessionStarted, Session: s})
	require.Eventually(t, func() bool { return len(pub.suffixes()) == 2 }, time.Second, 5*time.Millisecond)
	ticks.Publish(session.Tick{SessionID: "s1"})
	require.Eventually(t, func() bool { return len(pub.suffixes()) == 3 }, time.Second, 5*time.Millisecond)
	events.Publish(engine.Event{Kind: engine.EventSessionStopped})
	require.Eventually(t, func() bool { return len(pub.suffixes()) == 5 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{
		"events/session.started", "session/active", "session/tick",
		"events/session.stopped", "session/active",
	}, pub.suffixes())
	pub.mu.Lock()
	assert.True(t, pub.msgs[1].retained)
	assert.Equal(t, SessionState{Active: true, Session: s}, pub.msgs[1].v)
	assert.Equal(t, SessionState{}, pub.msgs[4].v)
	pub.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher did not stop")
	}
}

type fakeScanner struct {
	hints []string
	err   error
}

func (f *fakeScanner) ScanSuccess(_ context.Context, hint string) (model.ActiveSession, error) {
	f.hints = append(f.hints, hint)
	if f.err != nil {
		return model.ActiveSession{}, f.err
	}
	return model.ActiveSession{ID: "s1", StationName: "Garage"}, nil
}

func TestScanHandlerFor(t *testing.T) {
	sc := &fakeScanner{}
	h := ScanHandlerFor(context.Background(), sc, nil)
	h(ScanRequest{StationID: "e1", ReservationID: "r1"})
	sc.err = engine.ErrNoReservation
	h(ScanRequest{StationID: "e1"})
	sc.err = errors.New("boom")
	h(ScanRequest{StationID: "e1"})
	assert.Equal(t, []string{"r1", "", ""}, sc.hints)
}
