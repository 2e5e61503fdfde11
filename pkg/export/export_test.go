package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/smartshift/core/model"
)

func sessions() []model.ChargingSession {
	return []model.ChargingSession{
		{ID: "h1", StationName: "Marienplatz", Address: "Marienplatz 1", Date: time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC),
			DurationMinutes: 120, KWh: 42.17, TotalPrice: 14.89, Rating: 4, Feedback: "fast, clean"},
		{ID: "h2", StationName: "Olympiapark", Address: "Spiridon-Louis-Ring 21", Date: time.Date(2025, 5, 20, 9, 30, 0, 0, time.UTC),
			DurationMinutes: 60, KWh: 10.5, TotalPrice: 5.2},
		{ID: "h3", StationName: "Marienplatz", Address: "Marienplatz 1", Date: time.Date(2025, 6, 10, 18, 0, 0, 0, time.UTC),
			DurationMinutes: 30, KWh: 5, TotalPrice: 3.01},
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sessions()))
	var out []model.ChargingSession
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out, 3)
	assert.Equal(t, "h1", out[0].ID)
	assert.Equal(t, 4, out[0].Rating)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sessions()))
	recs, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 4)
	assert.Equal(t, CSVHeader, recs[0])
	assert.Equal(t, []string{"h1", "2025-06-02T14:00:00Z", "Marienplatz", "Marienplatz 1", "120", "42.17", "14.89", "4", "fast, clean"}, recs[1])
	assert.Equal(t, "", recs[2][7])
}

func TestMonthly(t *testing.T) {
	m := Monthly(sessions())
	require.Len(t, m, 2)
	assert.Equal(t, MonthTotal{Month: "2025-05", Sessions: 1, KWh: 10.5, Spent: 5.2}, m[0])
	assert.Equal(t, MonthTotal{Month: "2025-06", Sessions: 2, KWh: 47.17, Spent: 17.9}, m[1])
}

func TestWriteChart(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteChart(&buf, sessions()))
	html := buf.String()
	assert.Contains(t, html, "Charging history")
	assert.Contains(t, html, "2025-06")
}

func TestWriteDispatch(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCSV, sessions()))
	assert.Contains(t, buf.String(), "duration_min")
	assert.Error(t, Write(&buf, "xml", sessions()))
}
