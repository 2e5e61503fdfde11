// Package calendar models the recurring 48-slot daily availability template of
// a station. Slot i starts at i*30 minutes after midnight.
package calendar

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/kilianp07/smartshift/core/model"
)

const (
	// SlotsPerDay is the number of half-hour slots in a template.
	SlotsPerDay = model.SlotsPerDay
	// SlotMinutes is the length of one slot.
	SlotMinutes = 30
)

// Template is a read-only view on a station's availability.
type Template struct {
	slots []model.SlotState
}

// FromStation returns the template of st.
func FromStation(st model.Station) Template {
	return Template{slots: st.Availability}
}

// New builds a template from raw states.
func New(states []model.SlotState) Template {
	return Template{slots: states}
}

// State returns the state of slot i read modulo SlotsPerDay. Entries missing
// from a short template read as free.
func (t Template) State(i int) model.SlotState {
	idx := ((i % SlotsPerDay) + SlotsPerDay) % SlotsPerDay
	if idx >= len(t.slots) {
		return model.SlotFree
	}
	return t.slots[idx]
}

// FreeCount returns the number of free slots.
func (t Template) FreeCount() int {
	n := 0
	for i := 0; i < SlotsPerDay; i++ {
		if t.State(i) == model.SlotFree {
			n++
		}
	}
	return n
}

// Label formats slot i as HH:MM.
func Label(i int) string {
	return fmt.Sprintf("%02d:%02d", i/2, (i%2)*SlotMinutes)
}

// ParseLabel converts HH:MM into a slot index. Only half-hour boundaries are
// accepted.
func ParseLabel(label string) (int, error) {
	t, err := time.Parse(model.ClockLayout, label)
	if err != nil {
		return 0, fmt.Errorf("parse slot %q: %w", label, err)
	}
	if t.Minute()%SlotMinutes != 0 {
		return 0, fmt.Errorf("slot %q is not on a half hour", label)
	}
	return t.Hour()*2 + t.Minute()/SlotMinutes, nil
}

// Bucket returns the index of the slot containing t.
func Bucket(t time.Time) int {
	b := t.Hour() * 2
	if t.Minute() >= SlotMinutes {
		b++
	}
	return b
}

// Generate seeds a demo template: all free, then random busy runs of 2-8
// slots separated by short gaps.
func Generate(rng *rand.Rand) []model.SlotState {
	slots := make([]model.SlotState, SlotsPerDay)
	for i := range slots {
		slots[i] = model.SlotFree
	}
	i := rng.Intn(5)
	for i < SlotsPerDay {
		if rng.Float64() < 0.25 {
			run := rng.Intn(7) + 2
			for j := 0; j < run && i+j < SlotsPerDay; j++ {
				slots[i+j] = model.SlotBusy
			}
			i += run + rng.Intn(3)
			continue
		}
		i++
	}
	return slots
}
