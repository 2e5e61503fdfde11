package catalog

import (
	"bytes"
	_ "embed"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/smartshift/core/calendar"
	"github.com/kilianp07/smartshift/core/model"
)

//go:embed demo_stations.yaml
var demoStations []byte

// Demo returns the Munich demo stations with availability templates drawn
// from rng.
func Demo(rng *rand.Rand) ([]model.Station, error) {
	stations, err := Decode(bytes.NewReader(demoStations), "yaml")
	if err != nil {
		return nil, fmt.Errorf("demo catalog: %w", err)
	}
	for i := range stations {
		stations[i].Availability = calendar.Generate(rng)
	}
	return stations, nil
}

// DemoHistory fabricates 12 to 24 past sessions spread over the 90 days
// before now, newest first.
func DemoHistory(rng *rand.Rand, stations []model.Station, now time.Time) []model.ChargingSession {
	if len(stations) == 0 {
		return nil
	}
	n := rng.Intn(13) + 12
	out := make([]model.ChargingSession, 0, n)
	for i := 0; i < n; i++ {
		st := stations[rng.Intn(len(stations))]
		minutes := rng.Intn(120) + 30
		kwh := round1(float64(minutes) / 60 * st.PowerKW * 0.8)
		price := math.Round((st.ParkingFee+kwh*st.PriceCents/100)*100) / 100

		day := now.AddDate(0, 0, -(rng.Intn(90) + 1))
		date := time.Date(day.Year(), day.Month(), day.Day(), rng.Intn(15)+7, rng.Intn(60), 0, 0, now.Location())

		cs := model.ChargingSession{
			ID:              uuid.NewString(),
			StationName:     st.Name,
			Address:         st.Address,
			Date:            date,
			DurationMinutes: minutes,
			KWh:             kwh,
			TotalPrice:      price,
		}
		if rng.Float64() > 0.4 {
			cs.Rating = rng.Intn(2) + 4
		}
		if rng.Float64() > 0.8 {
			cs.Feedback = "Alles super!"
		}
		out = append(out, cs)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
