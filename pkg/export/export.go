package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/kilianp07/smartshift/core/model"
)

// Format names an export encoding.
type Format string

const (
	FormatJSON  Format = "json"
	FormatCSV   Format = "csv"
	FormatChart Format = "html"
)

// Write dispatches to the writer matching f.
func Write(w io.Writer, f Format, sessions []model.ChargingSession) error {
	switch f {
	case FormatJSON, "":
		return WriteJSON(w, sessions)
	case FormatCSV:
		return WriteCSV(w, sessions)
	case FormatChart, "chart":
		return WriteChart(w, sessions)
	}
	return fmt.Errorf("unknown export format %q", f)
}

// WriteJSON writes the charging history to w in JSON format.
func WriteJSON(w io.Writer, sessions []model.ChargingSession) error {
	enc := json.NewEncoder(w)
	return enc.Encode(sessions)
}

// CSVHeader is the first record written by WriteCSV.
var CSVHeader = []string{"id", "date", "station", "address", "duration_min", "kwh", "total_price", "rating", "feedback"}

// WriteCSV writes the charging history to w in CSV format. Unrated sessions
// have an empty rating column.
func WriteCSV(w io.Writer, sessions []model.ChargingSession) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, s := range sessions {
		rating := ""
		if s.Rated() {
			rating = strconv.Itoa(s.Rating)
		}
		rec := []string{
			s.ID,
			s.Date.Format(time.RFC3339),
			s.StationName,
			s.Address,
			strconv.Itoa(s.DurationMinutes),
			strconv.FormatFloat(s.KWh, 'f', 2, 64),
			strconv.FormatFloat(s.TotalPrice, 'f', 2, 64),
			rating,
			s.Feedback,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
