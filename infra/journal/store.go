// Package journal keeps an append-only record of every committed engine
// event, in a rotating JSONL file or a SQLite table.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kilianp07/smartshift/core/engine"
)

// Record is one journal line.
type Record struct {
	Timestamp     time.Time        `json:"timestamp"`
	Kind          engine.EventKind `json:"kind"`
	StationID     string           `json:"station_id,omitempty"`
	ReservationID string           `json:"reservation_id,omitempty"`
	SessionID     string           `json:"session_id,omitempty"`
	Event         engine.Event     `json:"event"`
}

// FromEvent flattens the identifiers of ev.
func FromEvent(ev engine.Event) Record {
	r := Record{Timestamp: ev.At, Kind: ev.Kind, Event: ev}
	if ev.Reservation != nil {
		r.ReservationID = ev.Reservation.ID
		r.StationID = ev.Reservation.StationID
	}
	if ev.Session != nil {
		r.SessionID = ev.Session.ID
		r.StationID = ev.Session.StationID
		if r.ReservationID == "" {
			r.ReservationID = ev.Session.ReservationID
		}
	}
	if ev.Completed != nil && r.SessionID == "" {
		r.SessionID = ev.Completed.ID
	}
	return r
}

// Query filters records. Zero fields match everything.
type Query struct {
	Start     time.Time
	End       time.Time
	Kind      engine.EventKind
	StationID string
}

func (q Query) match(r Record) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.Kind != "" && r.Kind != q.Kind {
		return false
	}
	if q.StationID != "" && r.StationID != q.StationID {
		return false
	}
	return true
}

// Store persists Records and supports querying.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// Config defines the journal backend and its rotation.
type Config struct {
	// Backend selects the store type: "jsonl" or "sqlite". Empty disables
	// the journal.
	Backend    string `json:"backend"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// SetDefaults applies sane defaults when a backend is selected.
func (c *Config) SetDefaults() {
	if c.Backend == "" {
		return
	}
	if c.Path == "" {
		if c.Backend == "sqlite" {
			c.Path = "journal.db"
		} else {
			c.Path = "journal.jsonl"
		}
	}
	if c.MaxSizeMB <= 0 {
		c.MaxSizeMB = 10
	}
}

// Validate checks the backend name.
func (c Config) Validate() error {
	switch c.Backend {
	case "", "jsonl", "sqlite":
		return nil
	}
	return fmt.Errorf("unknown journal backend %s", c.Backend)
}

// Open creates the store selected by cfg. It returns nil when the journal is
// disabled.
func Open(cfg Config) (Store, error) {
	cfg.SetDefaults()
	switch cfg.Backend {
	case "":
		return nil, nil
	case "jsonl":
		return NewRotatingJSONLStore(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
	case "sqlite":
		return NewSQLiteStore(cfg.Path)
	}
	return nil, cfg.Validate()
}

func encode(rec Record) ([]byte, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode journal record: %w", err)
	}
	return b, nil
}
