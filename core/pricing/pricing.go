// Package pricing computes reservation quotes: a flat parking fee plus
// metered energy, with a fixed start-up buffer deducted from the billed time.
package pricing

import (
	"math"
	"strconv"

	"github.com/kilianp07/smartshift/core/model"
)

// DefaultBufferMinutes is deducted from every charging window before energy
// is billed.
const DefaultBufferMinutes = 5

// Tariff is the subset of station data that drives a price.
type Tariff struct {
	PowerKW    float64
	PriceCents float64
	ParkingFee float64
}

// TariffOf extracts the tariff of a station.
func TariffOf(st model.Station) Tariff {
	return Tariff{PowerKW: st.PowerKW, PriceCents: st.PriceCents, ParkingFee: st.ParkingFee}
}

// Breakdown is a full-precision price quote. Round only for display.
type Breakdown struct {
	DurationMinutes  int     `json:"duration_minutes"`
	BufferMinutes    int     `json:"buffer_minutes"`
	EffectiveMinutes int     `json:"effective_minutes"`
	EnergyKWh        float64 `json:"energy_kwh"`
	ParkingFee       float64 `json:"parking_fee"`
	EnergyCost       float64 `json:"energy_cost"`
	Total            float64 `json:"total"`
}

// Calculator applies the buffer rule.
type Calculator struct {
	BufferMinutes int
}

// NewCalculator returns a Calculator with the given buffer. A negative buffer
// is treated as zero.
func NewCalculator(buffer int) Calculator {
	if buffer < 0 {
		buffer = 0
	}
	return Calculator{BufferMinutes: buffer}
}

// Quote prices a reservation of minutes at station st.
func (c Calculator) Quote(st model.Station, minutes int) Breakdown {
	return c.QuoteTariff(TariffOf(st), minutes)
}

// QuoteTariff prices minutes of charging under t. The parking fee is charged
// once regardless of the duration.
func (c Calculator) QuoteTariff(t Tariff, minutes int) Breakdown {
	effective := minutes - c.BufferMinutes
	if effective < 0 {
		effective = 0
	}
	kwh := t.PowerKW * float64(effective) / 60
	energy := kwh * t.PriceCents / 100
	return Breakdown{
		DurationMinutes:  minutes,
		BufferMinutes:    c.BufferMinutes,
		EffectiveMinutes: effective,
		EnergyKWh:        kwh,
		ParkingFee:       t.ParkingFee,
		EnergyCost:       energy,
		Total:            t.ParkingFee + energy,
	}
}

// Settle prices a finished session using its snapshotted tariff and the
// full booked duration.
func (c Calculator) Settle(s model.ActiveSession) Breakdown {
	return c.QuoteTariff(Tariff{PowerKW: s.PowerKW, PriceCents: s.PriceCents, ParkingFee: s.ParkingFee}, s.DurationMinutes)
}

// Round2 rounds half away from zero to 2 decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Format renders a currency or energy amount with 2 decimals.
func Format(v float64) string {
	return strconv.FormatFloat(Round2(v), 'f', 2, 64)
}
