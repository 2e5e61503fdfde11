package session

import (
	"context"
	"sync"
	"time"

	"github.com/kilianp07/smartshift/core/model"
	"github.com/kilianp07/smartshift/internal/eventbus"
)

// DefaultInterval is the refresh period of the charging view.
const DefaultInterval = time.Second

// Tick is published on every refresh of a running session.
type Tick struct {
	SessionID string        `json:"session_id"`
	Elapsed   time.Duration `json:"elapsed"`
	Remaining time.Duration `json:"remaining"`
	Progress  float64       `json:"progress"`
	At        time.Time     `json:"at"`
}

// Ticker is a cancellable periodic task bound to one session.
type Ticker struct {
	sess     model.ActiveSession
	bus      *eventbus.TypedBus[Tick]
	interval time.Duration
	now      func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewTicker prepares a ticker for s publishing on bus. A non-positive
// interval falls back to DefaultInterval; a nil clock uses time.Now.
func NewTicker(s model.ActiveSession, bus *eventbus.TypedBus[Tick], interval time.Duration, now func() time.Time) *Ticker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if now == nil {
		now = time.Now
	}
	return &Ticker{sess: s, bus: bus, interval: interval, now: now, done: make(chan struct{})}
}

// SessionID returns the id of the session the ticker is bound to.
func (t *Ticker) SessionID() string { return t.sess.ID }

// Start runs the loop in its own goroutine until ctx ends or Stop is called.
func (t *Ticker) Start(ctx context.Context) {
	ctx, t.cancel = context.WithCancel(ctx)
	go t.run(ctx)
}

func (t *Ticker) run(ctx context.Context) {
	defer close(t.done)
	tk := time.NewTicker(t.interval)
	defer tk.Stop()
	t.publish()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			t.publish()
		}
	}
}

func (t *Ticker) publish() {
	now := t.now()
	t.bus.Publish(Tick{
		SessionID: t.sess.ID,
		Elapsed:   Elapsed(t.sess, now),
		Remaining: Remaining(t.sess, now),
		Progress:  Progress(t.sess, now),
		At:        now,
	})
}

// Stop cancels the loop and waits for it to exit. It is safe to call more
// than once and before Start.
func (t *Ticker) Stop() {
	t.once.Do(func() {
		if t.cancel == nil {
			close(t.done)
			return
		}
		t.cancel()
	})
	<-t.done
}
