// Package availability derives the bookable start times of a station from its
// daily slot template.
package availability

import (
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/smartshift/core/calendar"
	"github.com/kilianp07/smartshift/core/model"
)

// MaxDayOffset is the last selectable day (0 = today, 1 = tomorrow, 2 = the day after).
const MaxDayOffset = 2

var (
	ErrInvalidDayOffset = errors.New("day offset must be 0, 1 or 2")
	ErrInvalidDuration  = errors.New("duration must be a positive multiple of 30 minutes")
	ErrSlotNotOffered   = errors.New("start time is not offered")
	ErrSlotUnavailable  = errors.New("start time does not fit the requested duration")
)

// Reason explains why a candidate does not fit.
type Reason string

const (
	ReasonNone     Reason = ""
	ReasonTooShort Reason = "too-short"
	ReasonOccupied Reason = "occupied"
)

// Candidate is one offered start time.
type Candidate struct {
	Index  int    `json:"index"`
	Time   string `json:"time"`
	Fit    bool   `json:"fit"`
	Reason Reason `json:"reason,omitempty"`
}

// Policy holds the opening window and the day-shift applied when the shared
// template is read for tomorrow and the day after.
type Policy struct {
	OpeningHour   int `json:"opening_hour" yaml:"opening_hour"`
	ClosingHour   int `json:"closing_hour" yaml:"closing_hour"`
	DayShiftSlots int `json:"day_shift_slots" yaml:"day_shift_slots"`
	// EndByClosing requires the whole window to end by ClosingHour: with
	// 06:00-22:00 a 360 min charge is never offered after 16:00. When false
	// a window may run until the end of the grid (i+chunks <= 48), so the
	// same charge fits up to 18:00.
	EndByClosing bool `json:"end_by_closing" yaml:"end_by_closing"`
}

// DefaultPolicy opens at 06:00, offers starts until 22:00 and rotates the
// template by 6 slots per day.
func DefaultPolicy() Policy {
	return Policy{OpeningHour: 6, ClosingHour: 22, DayShiftSlots: 6, EndByClosing: true}
}

// Validate checks that the policy describes a usable window.
func (p Policy) Validate() error {
	if p.OpeningHour < 0 || p.ClosingHour > 24 || p.OpeningHour > p.ClosingHour {
		return fmt.Errorf("invalid opening window %d-%d", p.OpeningHour, p.ClosingHour)
	}
	if p.DayShiftSlots < 0 {
		return fmt.Errorf("day_shift_slots must not be negative")
	}
	return nil
}

func (p Policy) endSlot() int {
	if p.EndByClosing && p.ClosingHour*2 < calendar.SlotsPerDay {
		return p.ClosingHour * 2
	}
	return calendar.SlotsPerDay
}

// Resolver lists candidate start times.
type Resolver struct {
	Policy Policy
}

// NewResolver returns a Resolver using p.
func NewResolver(p Policy) Resolver {
	return Resolver{Policy: p}
}

// Resolve returns every offered start time of station for the given day and
// duration, ascending. Unfit candidates are kept and flagged. Slots at or
// before the current half hour are never offered for today.
func (r Resolver) Resolve(st model.Station, dayOffset, minutes int, now time.Time) ([]Candidate, error) {
	if dayOffset < 0 || dayOffset > MaxDayOffset {
		return nil, ErrInvalidDayOffset
	}
	if minutes <= 0 || minutes%calendar.SlotMinutes != 0 {
		return nil, ErrInvalidDuration
	}
	chunks := minutes / calendar.SlotMinutes
	tpl := calendar.FromStation(st)
	nowBucket := calendar.Bucket(now)
	shift := dayOffset * r.Policy.DayShiftSlots
	end := r.Policy.endSlot()

	out := make([]Candidate, 0, calendar.SlotsPerDay)
	for i := 0; i < calendar.SlotsPerDay; i++ {
		hour := i / 2
		if hour < r.Policy.OpeningHour {
			continue
		}
		if i*calendar.SlotMinutes > r.Policy.ClosingHour*60 {
			continue
		}
		if dayOffset == 0 && i <= nowBucket {
			continue
		}
		c := Candidate{Index: i, Time: calendar.Label(i), Fit: true}
		if i+chunks > end {
			c.Fit, c.Reason = false, ReasonTooShort
		} else {
			for k := 0; k < chunks; k++ {
				if tpl.State((i+k+shift)%calendar.SlotsPerDay) != model.SlotFree {
					c.Fit, c.Reason = false, ReasonOccupied
					break
				}
			}
		}
		out = append(out, c)
	}
	return out, nil
}

// Fitting filters the candidates that fit.
func Fitting(cands []Candidate) []Candidate {
	var out []Candidate
	for _, c := range cands {
		if c.Fit {
			out = append(out, c)
		}
	}
	return out
}

// Check re-validates a single start time against the current template. It is
// called before a reservation is committed.
func (r Resolver) Check(st model.Station, dayOffset, minutes int, start string, now time.Time) error {
	cands, err := r.Resolve(st, dayOffset, minutes, now)
	if err != nil {
		return err
	}
	for _, c := range cands {
		if c.Time != start {
			continue
		}
		if !c.Fit {
			return fmt.Errorf("%w: %s at %s (%s)", ErrSlotUnavailable, st.ID, start, c.Reason)
		}
		return nil
	}
	return fmt.Errorf("%w: %s at %s", ErrSlotNotOffered, st.ID, start)
}

// DateForOffset returns the civil date of the selected day tab.
func DateForOffset(now time.Time, dayOffset int) string {
	return now.AddDate(0, 0, dayOffset).Format(model.DateLayout)
}
