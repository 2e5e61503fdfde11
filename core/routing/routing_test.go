package routing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kilianp07/smartshift/core/model"
)

type stubRouter struct {
	rt  *Route
	err error
}

func (s stubRouter) Route(context.Context, model.Coordinates, model.Coordinates) (*Route, error) {
	return s.rt, s.err
}

var (
	a = model.Coordinates{Lat: 48, Lng: 11}
	b = model.Coordinates{Lat: 48.1, Lng: 11}
)

func TestEstimate(t *testing.T) {
	r := Estimate(a, b)
	assert.Equal(t, "11.1", r.DistanceKm)
	assert.Equal(t, 22, r.DurationMinutes)
	assert.True(t, r.Estimated)
	assert.Len(t, r.Path, 2)

	same := Estimate(a, a)
	assert.Equal(t, "0.0", same.DistanceKm)
	assert.Equal(t, 0, same.DurationMinutes)
}

func TestInfoPrefersProvider(t *testing.T) {
	want := &Route{DistanceKm: "14.2", DurationMinutes: 19}
	got := Info(context.Background(), stubRouter{rt: want}, a, b)
	assert.Equal(t, *want, got)
}

func TestInfoFallsBack(t *testing.T) {
	ctx := context.Background()
	assert.True(t, Info(ctx, nil, a, b).Estimated)
	assert.True(t, Info(ctx, stubRouter{err: errors.New("down")}, a, b).Estimated)
	assert.True(t, Info(ctx, stubRouter{}, a, b).Estimated)
}
