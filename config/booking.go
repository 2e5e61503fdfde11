package config

import (
	"fmt"
	"time"

	"github.com/kilianp07/smartshift/core/availability"
	"github.com/kilianp07/smartshift/core/engine"
	"github.com/kilianp07/smartshift/core/pricing"
	"github.com/kilianp07/smartshift/core/session"
)

// BookingConfig holds the reservation rules.
type BookingConfig struct {
	OpeningHour       int           `json:"opening_hour"`
	ClosingHour       int           `json:"closing_hour"`
	DayShiftSlots     int           `json:"day_shift_slots"`
	EndByClosing      bool          `json:"end_by_closing"`
	BufferMinutes     int           `json:"buffer_minutes"`
	DefaultPowerKW    float64       `json:"default_power_kw"`
	DefaultPriceCents float64       `json:"default_price_cents"`
	Timezone          string        `json:"timezone"`
	TickInterval      time.Duration `json:"tick_interval"`
}

// DefaultBooking mirrors availability.DefaultPolicy and the pricing and
// fallback defaults.
func DefaultBooking() BookingConfig {
	p := availability.DefaultPolicy()
	return BookingConfig{
		OpeningHour:       p.OpeningHour,
		ClosingHour:       p.ClosingHour,
		DayShiftSlots:     p.DayShiftSlots,
		EndByClosing:      p.EndByClosing,
		BufferMinutes:     pricing.DefaultBufferMinutes,
		DefaultPowerKW:    engine.DefaultPowerKW,
		DefaultPriceCents: engine.DefaultPriceCents,
		TickInterval:      session.DefaultInterval,
	}
}

// SetDefaults applies defaults to values that cannot be zero.
func (c *BookingConfig) SetDefaults() {
	if c.DefaultPowerKW <= 0 {
		c.DefaultPowerKW = engine.DefaultPowerKW
	}
	if c.DefaultPriceCents <= 0 {
		c.DefaultPriceCents = engine.DefaultPriceCents
	}
	if c.TickInterval <= 0 {
		c.TickInterval = session.DefaultInterval
	}
}

// Validate checks the policy, the buffer and the timezone.
func (c BookingConfig) Validate() error {
	if err := c.Policy().Validate(); err != nil {
		return err
	}
	if c.BufferMinutes < 0 {
		return fmt.Errorf("buffer_minutes must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Policy returns the availability rules.
func (c BookingConfig) Policy() availability.Policy {
	return availability.Policy{
		OpeningHour:   c.OpeningHour,
		ClosingHour:   c.ClosingHour,
		DayShiftSlots: c.DayShiftSlots,
		EndByClosing:  c.EndByClosing,
	}
}

// Calculator returns the pricing rules.
func (c BookingConfig) Calculator() pricing.Calculator {
	return pricing.NewCalculator(c.BufferMinutes)
}

// Fallback returns the tariff used for unknown stations.
func (c BookingConfig) Fallback() engine.Fallback {
	return engine.Fallback{PowerKW: c.DefaultPowerKW, PriceCents: c.DefaultPriceCents}
}

// Location resolves Timezone. Empty means the host's local zone.
func (c BookingConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
