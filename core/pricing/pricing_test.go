package pricing

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kilianp07/smartshift/core/model"
)

var garage = model.Station{ID: "e1", PowerKW: 22, PriceCents: 30, ParkingFee: 2.24}

func TestQuoteBreakdown(t *testing.T) {
	c := NewCalculator(DefaultBufferMinutes)
	b := c.Quote(garage, 60)
	assert.Equal(t, 5, b.BufferMinutes)
	assert.Equal(t, 55, b.EffectiveMinutes)
	assert.InDelta(t, 22*55.0/60, b.EnergyKWh, 1e-9)
	assert.InDelta(t, 22*55.0/60*0.30, b.EnergyCost, 1e-9)
	assert.Equal(t, 2.24, b.ParkingFee)
	assert.InDelta(t, 2.24+22*55.0/60*0.30, b.Total, 1e-9)
	assert.Equal(t, "8.29", Format(b.Total))
}

func TestQuoteZeroDuration(t *testing.T) {
	c := NewCalculator(DefaultBufferMinutes)
	for _, m := range []int{0, 3, 5} {
		b := c.Quote(garage, m)
		assert.Equal(t, 0.0, b.EnergyCost)
		assert.Equal(t, garage.ParkingFee, b.Total)
	}
}

func TestQuoteMonotonic(t *testing.T) {
	c := NewCalculator(DefaultBufferMinutes)
	prev := c.Quote(garage, 0).Total
	for m := 1; m <= 10000; m += 7 {
		cur := c.Quote(garage, m).Total
		assert.GreaterOrEqual(t, cur, prev, "minutes %d", m)
		prev = cur
	}
	big := c.Quote(garage, 60*24*30)
	assert.InDelta(t, 2.24+22*float64(60*24*30-5)/60*0.30, big.Total, 1e-6)
}

func TestNegativeBuffer(t *testing.T) {
	c := NewCalculator(-3)
	assert.Equal(t, 0, c.BufferMinutes)
	assert.Equal(t, 60, c.Quote(garage, 60).EffectiveMinutes)
}

func TestSettleBooked120(t *testing.T) {
	c := NewCalculator(DefaultBufferMinutes)
	start := time.Now()
	s := model.ActiveSession{
		StartTime: start, EndTime: start.Add(2 * time.Hour), DurationMinutes: 120,
		PowerKW: 22, PriceCents: 30, ParkingFee: 2.24,
	}
	b := c.Settle(s)
	assert.InDelta(t, 42.1667, b.EnergyKWh, 1e-4)
	assert.Equal(t, 42.17, Round2(b.EnergyKWh))
	assert.Equal(t, 14.89, Round2(b.Total))
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 1.01, Round2(1.005000001))
	assert.Equal(t, 0.0, Round2(0.004))
	assert.Equal(t, "0.00", Format(0))
	assert.False(t, math.IsNaN(Round2(1e12)))
}
