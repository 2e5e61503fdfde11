// Package monitoring reports errors and panics to Sentry and keeps the
// booking lifecycle as breadcrumbs.
package monitoring

import (
	"context"
	"errors"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/kilianp07/smartshift/config"
	"github.com/kilianp07/smartshift/core/availability"
	"github.com/kilianp07/smartshift/core/engine"
	coremon "github.com/kilianp07/smartshift/core/monitoring"
	"github.com/kilianp07/smartshift/internal/eventbus"
)

// maxBreadcrumbs bounds the lifecycle trail attached to an event.
const maxBreadcrumbs = 50

// expected are domain refusals returned to the user; they are not faults.
var expected = []error{
	engine.ErrBookingExists,
	engine.ErrSessionActive,
	engine.ErrNoReservation,
	engine.ErrNoActiveSession,
	availability.ErrSlotUnavailable,
}

// NewSentryMonitor initializes Sentry from cfg. An empty DSN yields a
// NopMonitor.
func NewSentryMonitor(cfg config.SentryConfig) (coremon.Monitor, error) {
	if cfg.DSN == "" {
		return coremon.NopMonitor{}, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		TracesSampleRate: cfg.TracesSampleRate,
		Release:          cfg.Release,
		ServerName:       "smartshift",
		MaxBreadcrumbs:   maxBreadcrumbs,
		BeforeSend:       dropExpected,
	})
	if err != nil {
		return nil, err
	}
	return &sentryMonitor{}, nil
}

func dropExpected(ev *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	if hint == nil || hint.OriginalException == nil {
		return ev
	}
	for _, e := range expected {
		if errors.Is(hint.OriginalException, e) {
			return nil
		}
	}
	return ev
}

type sentryMonitor struct{}

func (s *sentryMonitor) CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		sentry.CaptureException(err)
	})
}

func (s *sentryMonitor) Breadcrumb(category, message string, data map[string]any) {
	sentry.AddBreadcrumb(&sentry.Breadcrumb{
		Category:  category,
		Message:   message,
		Data:      data,
		Level:     sentry.LevelInfo,
		Timestamp: time.Now(),
	})
}

func (s *sentryMonitor) Recover() {
	if r := recover(); r != nil {
		sentry.CurrentHub().Recover(r)
		sentry.Flush(2 * time.Second)
		panic(r)
	}
}

func (s *sentryMonitor) Flush(timeout time.Duration) { sentry.Flush(timeout) }

// StartBreadcrumbs turns every engine event into a breadcrumb on the current
// monitor until ctx is canceled or the bus is closed.
func StartBreadcrumbs(ctx context.Context, bus *eventbus.TypedBus[engine.Event]) <-chan struct{} {
	return eventbus.Listen(ctx, bus, func(ev engine.Event) {
		coremon.Breadcrumb("booking", string(ev.Kind), crumbData(ev))
	})
}

func crumbData(ev engine.Event) map[string]any {
	data := map[string]any{}
	switch {
	case ev.Reservation != nil:
		data["reservation_id"] = ev.Reservation.ID
		data["station_id"] = ev.Reservation.StationID
		data["start"] = ev.Reservation.Date + " " + ev.Reservation.StartTime
	case ev.Session != nil:
		data["session_id"] = ev.Session.ID
		data["station_id"] = ev.Session.StationID
	case ev.Completed != nil:
		data["session_id"] = ev.Completed.ID
		data["total_price"] = ev.Completed.TotalPrice
	}
	if ev.Notice != "" {
		data["notice"] = ev.Notice
	}
	return data
}
