package stations

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/kilianp07/smartshift/api"
	"github.com/kilianp07/smartshift/core/availability"
	"github.com/kilianp07/smartshift/core/catalog"
	"github.com/kilianp07/smartshift/core/logger"
	"github.com/kilianp07/smartshift/core/metrics"
	"github.com/kilianp07/smartshift/core/model"
	"github.com/kilianp07/smartshift/core/pricing"
	"github.com/kilianp07/smartshift/core/routing"
)

// Clock gives the handlers the engine's time zone, resolver and calculator.
type Clock interface {
	Now() time.Time
	Location() *time.Location
	Resolver() availability.Resolver
	Calculator() pricing.Calculator
}

// NewListHandler exposes the catalog via GET /api/stations. Query
// parameters only_available, min_power and type filter the list; lat and
// lng order it by distance, limit caps it.
func NewListHandler(cat catalog.Catalog) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		q := r.URL.Query()
		minPower, err := api.QueryFloat(r, "min_power", 0)
		if err != nil {
			api.Error(w, err)
			return
		}
		f := catalog.Filter{
			OnlyAvailable: q.Get("only_available") == "true",
			MinPowerKW:    minPower,
			Connector:     q.Get("type"),
		}
		list := f.Apply(cat.Stations())
		if q.Get("lat") != "" && q.Get("lng") != "" {
			origin, err := coordinates(r)
			if err != nil {
				api.Error(w, err)
				return
			}
			limit, err := api.QueryInt(r, "limit", -1)
			if err != nil {
				api.Error(w, err)
				return
			}
			list = catalog.Nearest(list, origin, limit)
		}
		api.WriteJSON(w, http.StatusOK, list)
	})
}

// SlotsResponse is returned by the slots handler.
type SlotsResponse struct {
	StationID       string                   `json:"station_id"`
	Date            string                   `json:"date"`
	Day             int                      `json:"day"`
	DurationMinutes int                      `json:"duration_minutes"`
	Fitting         int                      `json:"fitting"`
	Slots           []availability.Candidate `json:"slots"`
}

// NewSlotsHandler lists the start times of a station via
// GET /api/stations/{id}/slots?day=&duration=. The lookup is reported to
// sink when it records slot queries; sink failures are logged.
func NewSlotsHandler(cat catalog.Catalog, clk Clock, sink metrics.MetricsSink, log logger.Logger) http.Handler {
	log = logger.OrNop(log)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		st, ok := lookup(w, r, cat)
		if !ok {
			return
		}
		day, err := api.QueryInt(r, "day", 0)
		if err != nil {
			api.Error(w, err)
			return
		}
		minutes, err := api.QueryInt(r, "duration", 60)
		if err != nil {
			api.Error(w, err)
			return
		}
		now := clk.Now().In(clk.Location())
		cands, err := clk.Resolver().Resolve(st, day, minutes, now)
		if err != nil {
			api.Error(w, err)
			return
		}
		fitting := len(availability.Fitting(cands))
		if rec, ok := sink.(metrics.SlotQueryRecorder); ok {
			if err := rec.RecordSlotQuery(metrics.SlotQuery{StationID: st.ID, DayOffset: day,
				DurationMinutes: minutes, Offered: len(cands), Fitting: fitting}); err != nil {
				log.Warnf("record slot query: %v", err)
			}
		}
		api.WriteJSON(w, http.StatusOK, SlotsResponse{
			StationID:       st.ID,
			Date:            availability.DateForOffset(now, day),
			Day:             day,
			DurationMinutes: minutes,
			Fitting:         fitting,
			Slots:           cands,
		})
	})
}

// QuoteResponse is a price breakdown with display strings.
type QuoteResponse struct {
	StationID string `json:"station_id"`
	pricing.Breakdown
	TotalLabel string `json:"total_label"`
}

// NewQuoteHandler prices a reservation via GET /api/stations/{id}/quote?duration=.
func NewQuoteHandler(cat catalog.Catalog, clk Clock) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		st, ok := lookup(w, r, cat)
		if !ok {
			return
		}
		minutes, err := api.QueryInt(r, "duration", 60)
		if err != nil {
			api.Error(w, err)
			return
		}
		if !model.ValidDuration(minutes) {
			api.Error(w, fmt.Errorf("%w: %d", availability.ErrInvalidDuration, minutes))
			return
		}
		b := clk.Calculator().Quote(st, minutes)
		api.WriteJSON(w, http.StatusOK, QuoteResponse{StationID: st.ID, Breakdown: b, TotalLabel: pricing.Format(b.Total) + " €"})
	})
}

// NewRouteHandler returns the route to a station via
// GET /api/stations/{id}/route?lat=&lng=. It answers with the straight-line
// estimate when router is nil or fails.
func NewRouteHandler(cat catalog.Catalog, router routing.Router) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		st, ok := lookup(w, r, cat)
		if !ok {
			return
		}
		from, err := coordinates(r)
		if err != nil {
			api.Error(w, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, routing.Info(r.Context(), router, from, st.Position()))
	})
}

func lookup(w http.ResponseWriter, r *http.Request, cat catalog.Catalog) (model.Station, bool) {
	id := r.PathValue("id")
	st, ok := cat.Station(id)
	if !ok {
		api.Error(w, fmt.Errorf("%w: %s", catalog.ErrStationNotFound, strconv.Quote(id)))
	}
	return st, ok
}

func coordinates(r *http.Request) (model.Coordinates, error) {
	lat, err := api.QueryFloat(r, "lat", 0)
	if err != nil {
		return model.Coordinates{}, err
	}
	lng, err := api.QueryFloat(r, "lng", 0)
	if err != nil {
		return model.Coordinates{}, err
	}
	return model.Coordinates{Lat: lat, Lng: lng}, nil
}
