// Package routing defines the navigation collaborator and the straight-line
// estimate used when no provider answers.
package routing

import (
	"context"
	"math"
	"strconv"

	"github.com/kilianp07/smartshift/core/catalog"
	"github.com/kilianp07/smartshift/core/model"
)

// FallbackSpeedKmh is the average speed assumed by Estimate.
const FallbackSpeedKmh = 30

// Route is a driving route. Path points are [lat, lng].
type Route struct {
	Path            [][2]float64 `json:"path,omitempty"`
	DistanceKm      string       `json:"distance"`
	DurationMinutes int          `json:"duration"`
	Estimated       bool         `json:"estimated,omitempty"`
}

// Router computes a route between two positions.
type Router interface {
	Route(ctx context.Context, from, to model.Coordinates) (*Route, error)
}

// Estimate derives a route from the great-circle distance at
// FallbackSpeedKmh. The path is the straight segment.
func Estimate(from, to model.Coordinates) Route {
	d := catalog.Distance(from, to)
	return Route{
		Path:            [][2]float64{{from.Lat, from.Lng}, {to.Lat, to.Lng}},
		DistanceKm:      strconv.FormatFloat(d, 'f', 1, 64),
		DurationMinutes: int(math.Round(d / FallbackSpeedKmh * 60)),
		Estimated:       true,
	}
}

// Info asks r for a route and falls back to Estimate when r is nil, fails or
// returns nothing. It never fails.
func Info(ctx context.Context, r Router, from, to model.Coordinates) Route {
	if r != nil {
		if rt, err := r.Route(ctx, from, to); err == nil && rt != nil {
			return *rt
		}
	}
	return Estimate(from, to)
}
