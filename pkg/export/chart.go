package export

import (
	"fmt"
	"io"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/kilianp07/smartshift/core/model"
	"github.com/kilianp07/smartshift/core/pricing"
)

// MonthTotal aggregates the sessions of one calendar month.
type MonthTotal struct {
	Month    string
	Sessions int
	KWh      float64
	Spent    float64
}

// Monthly groups sessions by month of their date, oldest month first.
func Monthly(sessions []model.ChargingSession) []MonthTotal {
	idx := make(map[string]int)
	var out []MonthTotal
	for _, s := range sessions {
		key := s.Date.Format("2006-01")
		i, ok := idx[key]
		if !ok {
			i = len(out)
			idx[key] = i
			out = append(out, MonthTotal{Month: key})
		}
		out[i].Sessions++
		out[i].KWh += s.KWh
		out[i].Spent += s.TotalPrice
	}
	for i := range out {
		out[i].KWh = pricing.Round2(out[i].KWh)
		out[i].Spent = pricing.Round2(out[i].Spent)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}

// WriteChart renders an HTML page with the energy and spending per month.
func WriteChart(w io.Writer, sessions []model.ChargingSession) error {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Charging history", Subtitle: fmt.Sprintf("%d sessions", len(sessions))}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Month"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "kWh / €"}),
	)

	months := Monthly(sessions)
	xAxis := make([]string, 0, len(months))
	energy := make([]opts.BarData, 0, len(months))
	spent := make([]opts.BarData, 0, len(months))
	for _, m := range months {
		xAxis = append(xAxis, m.Month)
		energy = append(energy, opts.BarData{Value: m.KWh})
		spent = append(spent, opts.BarData{Value: m.Spent})
	}
	bar.SetXAxis(xAxis).
		AddSeries("Energy (kWh)", energy).
		AddSeries("Spent (€)", spent)

	if err := bar.Render(w); err != nil {
		return fmt.Errorf("failed to render chart: %v", err)
	}
	return nil
}
