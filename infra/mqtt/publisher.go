package mqtt

import (
	"context"
	"errors"
	"sync"

	"github.com/kilianp07/smartshift/core/engine"
	"github.com/kilianp07/smartshift/core/logger"
	"github.com/kilianp07/smartshift/core/model"
	"github.com/kilianp07/smartshift/core/session"
	"github.com/kilianp07/smartshift/internal/eventbus"
)

// Publisher sends a JSON payload below the topic prefix.
type Publisher interface {
	PublishJSON(suffix, kind string, retained bool, v any) error
}

// SessionState is the retained payload of <prefix>/session/active.
type SessionState struct {
	Active  bool                 `json:"active"`
	Session *model.ActiveSession `json:"session,omitempty"`
}

// StartEventPublisher forwards every engine event to events/<kind> and keeps
// session/active up to date. Ticks are forwarded to session/tick when ticks
// is not nil. Both forwarders stop with ctx; the returned channel is closed
// once they have.
func StartEventPublisher(ctx context.Context, pub Publisher, events *eventbus.TypedBus[engine.Event], ticks *eventbus.TypedBus[session.Tick], log logger.Logger) <-chan struct{} {
	log = logger.OrNop(log)
	var wg sync.WaitGroup
	wg.Add(1)
	evDone := eventbus.Listen(ctx, events, func(ev engine.Event) {
		if err := publishEvent(pub, ev); err != nil {
			log.Errorf("mqtt publish %s: %v", ev.Kind, err)
		}
	})
	go func() { <-evDone; wg.Done() }()

	if ticks != nil {
		wg.Add(1)
		tickDone := eventbus.Listen(ctx, ticks, func(t session.Tick) {
			if err := pub.PublishJSON("session/tick", "tick", false, t); err != nil {
				log.Warnf("mqtt publish tick: %v", err)
			}
		})
		go func() { <-tickDone; wg.Done() }()
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	return done
}

func publishEvent(pub Publisher, ev engine.Event) error {
	err := pub.PublishJSON("events/"+string(ev.Kind), "event", false, ev)
	switch ev.Kind {
	case engine.EventLoaded, engine.EventSessionStarted:
		st := SessionState{Active: ev.Session != nil, Session: ev.Session}
		err = errors.Join(err, pub.PublishJSON("session/active", "state", true, st))
	case engine.EventSessionStopped:
		err = errors.Join(err, pub.PublishJSON("session/active", "state", true, SessionState{}))
	}
	return err
}

// Scanner activates reservations.
type Scanner interface {
	ScanSuccess(ctx context.Context, hint string) (model.ActiveSession, error)
}

// ScanHandlerFor turns scan commands into engine activations. A scan
// without reservation is published by the engine as scan.no_reservation.
func ScanHandlerFor(ctx context.Context, s Scanner, log logger.Logger) ScanHandler {
	log = logger.OrNop(log)
	return func(req ScanRequest) {
		sess, err := s.ScanSuccess(ctx, req.ReservationID)
		if err != nil {
			if errors.Is(err, engine.ErrNoReservation) {
				log.Infof("scan at station %s: %v", req.StationID, err)
				return
			}
			log.Errorf("scan at station %s: %v", req.StationID, err)
			return
		}
		log.Infof("session %s started at %s", sess.ID, sess.StationName)
	}
}
