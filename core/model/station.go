package model

import (
	"fmt"
)

// SlotsPerDay is the number of half-hour slots in an availability template.
const SlotsPerDay = 48

// SlotState tags a half-hour slot of a station's daily template.
type SlotState uint8

const (
	SlotClosed SlotState = iota
	SlotBusy
	SlotFree
)

// String returns a human-readable representation of the slot state.
func (s SlotState) String() string {
	switch s {
	case SlotClosed:
		return "closed"
	case SlotBusy:
		return "busy"
	case SlotFree:
		return "free"
	default:
		return "unknown"
	}
}

// StationStatus is the live status shown on the map marker.
type StationStatus string

const (
	StationAvailable StationStatus = "available"
	StationBusy      StationStatus = "busy"
	StationClosed    StationStatus = "closed"
)

// LocationKind distinguishes garage and outdoor pricing models.
type LocationKind string

const (
	LocationGarage  LocationKind = "garage"
	LocationOutdoor LocationKind = "outdoor"
)

// Connector types offered by the demo catalog.
const (
	ConnectorType2 = "Typ 2"
	ConnectorCCS   = "CCS"
)

// Coordinates is a WGS84 position.
type Coordinates struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Station is a charging point offered for reservation. The catalog owns it;
// the booking core only reads it.
type Station struct {
	ID           string        `json:"id" yaml:"id"`
	Name         string        `json:"name" yaml:"name"`
	Address      string        `json:"address" yaml:"address"`
	Lat          float64       `json:"lat" yaml:"lat"`
	Lng          float64       `json:"lng" yaml:"lng"`
	Connector    string        `json:"type" yaml:"type"`
	PowerKW      float64       `json:"power" yaml:"power"`             // rated power in kW
	PriceCents   float64       `json:"price" yaml:"price"`             // energy price in ct/kWh
	ParkingFee   float64       `json:"parking_fee" yaml:"parking_fee"` // flat fee in EUR per reservation
	LocationKind LocationKind  `json:"location_type" yaml:"location_type"`
	Status       StationStatus `json:"status" yaml:"status"`
	Rating       float64       `json:"rating" yaml:"rating"`
	Owner        string        `json:"owner" yaml:"owner"`

	// Availability is the recurring daily template, index 0 = 00:00 and
	// index 47 = 23:30.
	Availability []SlotState `json:"availability" yaml:"availability"`
}

// Position returns the station coordinates.
func (s Station) Position() Coordinates {
	return Coordinates{Lat: s.Lat, Lng: s.Lng}
}

// Validate checks the template size and the tariff values.
func (s Station) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("station id is required")
	}
	if len(s.Availability) != SlotsPerDay {
		return fmt.Errorf("station %s: availability must have %d slots, got %d", s.ID, SlotsPerDay, len(s.Availability))
	}
	for i, st := range s.Availability {
		if st > SlotFree {
			return fmt.Errorf("station %s: invalid slot state %d at index %d", s.ID, st, i)
		}
	}
	if s.PowerKW < 0 || s.PriceCents < 0 || s.ParkingFee < 0 {
		return fmt.Errorf("station %s: tariff values must not be negative", s.ID)
	}
	return nil
}
