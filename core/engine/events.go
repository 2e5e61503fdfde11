package engine

import (
	"time"

	"github.com/kilianp07/smartshift/core/model"
)

// EventKind names a committed state change.
type EventKind string

const (
	EventLoaded              EventKind = "state.loaded"
	EventReservationCreated  EventKind = "reservation.created"
	EventReservationCanceled EventKind = "reservation.cancelled"
	EventSessionStarted      EventKind = "session.started"
	EventSessionStopped      EventKind = "session.stopped"
	EventSessionReviewed     EventKind = "session.reviewed"
	EventNavigationChanged   EventKind = "navigation.changed"
	EventNoReservation       EventKind = "scan.no_reservation"
	EventHistoryReplaced     EventKind = "history.replaced"
)

// Event is published after every committed change, and for the soft
// failure of a scan without reservation.
type Event struct {
	Kind        EventKind              `json:"kind"`
	At          time.Time              `json:"at"`
	Reservation *model.Reservation     `json:"reservation,omitempty"`
	Session     *model.ActiveSession   `json:"session,omitempty"`
	Completed   *model.ChargingSession `json:"completed,omitempty"`
	Navigating  bool                   `json:"navigating,omitempty"`
	Notice      string                 `json:"notice,omitempty"`
}

// NoticeNoReservation is shown when a scan matches no reservation.
const NoticeNoReservation = "no reservation found"
