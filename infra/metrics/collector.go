package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/smartshift/core/engine"
	"github.com/kilianp07/smartshift/internal/eventbus"
)

// StateGauges mirror the engine state: open reservations and whether a
// charging session is running.
type StateGauges struct {
	Reservations prometheus.Gauge
	Active       prometheus.Gauge
}

// NewStateGauges registers the gauges on reg, reusing existing ones.
func NewStateGauges(reg prometheus.Registerer) (*StateGauges, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	res, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "smartshift_reservations_open",
		Help: "Reservations waiting for activation",
	}))
	if err != nil {
		return nil, err
	}
	act, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "smartshift_session_active",
		Help: "1 while a charging session is running",
	}))
	if err != nil {
		return nil, err
	}
	return &StateGauges{Reservations: res, Active: act}, nil
}

// StartEventCollector refreshes g from snapshot after every engine event
// until ctx is canceled or the bus is closed.
func StartEventCollector(ctx context.Context, bus *eventbus.TypedBus[engine.Event], snapshot func() engine.State, g *StateGauges) <-chan struct{} {
	g.update(snapshot())
	return eventbus.Listen(ctx, bus, func(engine.Event) {
		g.update(snapshot())
	})
}

func (g *StateGauges) update(st engine.State) {
	g.Reservations.Set(float64(len(st.Reservations)))
	if st.Active != nil {
		g.Active.Set(1)
	} else {
		g.Active.Set(0)
	}
}
