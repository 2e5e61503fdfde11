// Package catalog provides the station list read by the booking core and
// the search helpers built on it.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/kilianp07/smartshift/core/model"
)

// ErrStationNotFound is returned when an id is not in the catalog.
var ErrStationNotFound = errors.New("station not found")

// Catalog is the read-only station collaborator.
type Catalog interface {
	Stations() []model.Station
	Station(id string) (model.Station, bool)
}

// Memory is an in-process Catalog. Stations are returned in insertion order.
type Memory struct {
	mu    sync.RWMutex
	order []string
	data  map[string]model.Station
}

// NewMemory validates stations and indexes them by id.
func NewMemory(stations []model.Station) (*Memory, error) {
	m := &Memory{data: make(map[string]model.Station, len(stations))}
	for _, st := range stations {
		if err := st.Validate(); err != nil {
			return nil, fmt.Errorf("station %q: %w", st.ID, err)
		}
		if _, dup := m.data[st.ID]; dup {
			return nil, fmt.Errorf("duplicate station id %q", st.ID)
		}
		m.order = append(m.order, st.ID)
		m.data[st.ID] = st
	}
	return m, nil
}

func (m *Memory) Stations() []model.Station {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Station, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.data[id])
	}
	return out
}

func (m *Memory) Station(id string) (model.Station, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.data[id]
	return st, ok
}

// SetStatus updates the live status of a station.
func (m *Memory) SetStatus(id string, status model.StationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.data[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrStationNotFound, id)
	}
	st.Status = status
	m.data[id] = st
	return nil
}

// Filter narrows a station list. Zero values disable a criterion.
type Filter struct {
	OnlyAvailable bool    `json:"only_available"`
	MinPowerKW    float64 `json:"min_power"`
	Connector     string  `json:"type"` // "" or "all" matches every connector
}

// Apply returns the stations matching f, keeping the input order.
func (f Filter) Apply(stations []model.Station) []model.Station {
	out := make([]model.Station, 0, len(stations))
	for _, s := range stations {
		if f.OnlyAvailable && s.Status != model.StationAvailable {
			continue
		}
		if s.PowerKW < f.MinPowerKW {
			continue
		}
		if f.Connector != "" && f.Connector != "all" && s.Connector != f.Connector {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Nearest returns up to limit stations ordered by distance from origin.
func Nearest(stations []model.Station, origin model.Coordinates, limit int) []model.Station {
	sorted := make([]model.Station, len(stations))
	copy(sorted, stations)
	sort.SliceStable(sorted, func(i, j int) bool {
		return Distance(origin, sorted[i].Position()) < Distance(origin, sorted[j].Position())
	})
	if limit >= 0 && limit < len(sorted) {
		sorted = sorted[:limit]
	}
	return sorted
}

// NearestAvailable returns the closest available station.
func NearestAvailable(stations []model.Station, origin model.Coordinates) (model.Station, bool) {
	var (
		best  model.Station
		bestD float64
		found bool
	)
	for _, s := range stations {
		if s.Status != model.StationAvailable {
			continue
		}
		d := Distance(origin, s.Position())
		if !found || d < bestD {
			best, bestD, found = s, d, true
		}
	}
	return best, found
}
