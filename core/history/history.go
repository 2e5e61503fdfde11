// Package history aggregates the charging history.
package history

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/smartshift/core/model"
	"github.com/kilianp07/smartshift/core/pricing"
)

// Summary holds the totals shown above the history list.
type Summary struct {
	Sessions           int     `json:"sessions"`
	TotalKWh           float64 `json:"total_kwh"`
	TotalSpent         float64 `json:"total_spent"`
	AvgKWh             float64 `json:"avg_kwh"`
	AvgPrice           float64 `json:"avg_price"`
	AvgDurationMinutes float64 `json:"avg_duration_minutes"`
	AvgRating          float64 `json:"avg_rating"`
	Rated              int     `json:"rated"`
}

// Summarize computes totals and means over h. Unrated sessions are ignored
// for the rating mean.
func Summarize(h []model.ChargingSession) Summary {
	if len(h) == 0 {
		return Summary{}
	}
	kwh := make([]float64, len(h))
	spent := make([]float64, len(h))
	dur := make([]float64, len(h))
	var ratings []float64
	for i, s := range h {
		kwh[i] = s.KWh
		spent[i] = s.TotalPrice
		dur[i] = float64(s.DurationMinutes)
		if s.Rated() {
			ratings = append(ratings, float64(s.Rating))
		}
	}
	sum := Summary{
		Sessions:           len(h),
		TotalKWh:           pricing.Round2(floats.Sum(kwh)),
		TotalSpent:         pricing.Round2(floats.Sum(spent)),
		AvgKWh:             pricing.Round2(stat.Mean(kwh, nil)),
		AvgPrice:           pricing.Round2(stat.Mean(spent, nil)),
		AvgDurationMinutes: pricing.Round2(stat.Mean(dur, nil)),
		Rated:              len(ratings),
	}
	if len(ratings) > 0 {
		sum.AvgRating = pricing.Round2(stat.Mean(ratings, nil))
	}
	return sum
}

// NewestFirst returns a copy of h sorted by date, most recent first.
func NewestFirst(h []model.ChargingSession) []model.ChargingSession {
	out := make([]model.ChargingSession, len(h))
	copy(out, h)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}

// Find returns the index of the session with id, or -1.
func Find(h []model.ChargingSession, id string) int {
	for i, s := range h {
		if s.ID == id {
			return i
		}
	}
	return -1
}
