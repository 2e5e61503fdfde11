// Package session tracks the live charging session: elapsed time, progress
// and the final bill.
package session

import (
	"fmt"
	"time"

	"github.com/kilianp07/smartshift/core/model"
	"github.com/kilianp07/smartshift/core/pricing"
)

// Elapsed is the time spent since the session started. It never goes below
// zero.
func Elapsed(s model.ActiveSession, now time.Time) time.Duration {
	d := now.Sub(s.StartTime)
	if d < 0 {
		return 0
	}
	return d
}

// Remaining is the time left until the planned end, floored at zero.
func Remaining(s model.ActiveSession, now time.Time) time.Duration {
	d := s.EndTime.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Progress is the elapsed fraction of the planned window clamped to [0,1].
// A zero-length window is reported as complete.
func Progress(s model.ActiveSession, now time.Time) float64 {
	w := s.Window()
	if w <= 0 {
		return 1
	}
	p := float64(Elapsed(s, now)) / float64(w)
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

// Settle turns a finished session into a history entry. The full booked
// duration is billed, so stopping early does not reduce the price.
func Settle(s model.ActiveSession, calc pricing.Calculator) model.ChargingSession {
	b := calc.Settle(s)
	return model.ChargingSession{
		ID:              s.ID,
		StationName:     s.StationName,
		Address:         s.Address,
		Date:            s.StartTime,
		DurationMinutes: s.DurationMinutes,
		KWh:             pricing.Round2(b.EnergyKWh),
		TotalPrice:      pricing.Round2(b.Total),
	}
}

// FormatElapsed renders d as mm:ss, or h:mm:ss once it reaches an hour.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	h, m, sec := total/3600, (total/60)%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%02d:%02d", m, sec)
}
