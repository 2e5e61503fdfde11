package journal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/smartshift/core/engine"
	infrajournal "github.com/kilianp07/smartshift/infra/journal"
)

type memStore struct{ recs []infrajournal.Record }

func (m *memStore) Append(_ context.Context, r infrajournal.Record) error {
	m.recs = append(m.recs, r)
	return nil
}

func (m *memStore) Query(_ context.Context, q infrajournal.Query) ([]infrajournal.Record, error) {
	var res []infrajournal.Record
	for _, r := range m.recs {
		if q.StationID != "" && r.StationID != q.StationID {
			continue
		}
		if q.Kind != "" && r.Kind != q.Kind {
			continue
		}
		if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
			continue
		}
		res = append(res, r)
	}
	return res, nil
}

func (m *memStore) Close() error { return nil }

func TestJournalHandlerFilters(t *testing.T) {
	at := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	store := &memStore{}
	require.NoError(t, store.Append(context.Background(), infrajournal.Record{Timestamp: at, Kind: engine.EventReservationCreated, StationID: "e1"}))
	require.NoError(t, store.Append(context.Background(), infrajournal.Record{Timestamp: at.Add(time.Hour), Kind: engine.EventSessionStarted, StationID: "e2"}))
	h := NewJournalHandler(store)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/journal?station_id=e1", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var out []infrajournal.Record
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, engine.EventReservationCreated, out[0].Kind)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/journal?start=2025-06-02T14:30:00Z&kind=session.started", nil))
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "e2", out[0].StationID)
}

func TestJournalHandlerEmpty(t *testing.T) {
	rr := httptest.NewRecorder()
	NewJournalHandler(&memStore{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/journal", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "[]\n", rr.Body.String())
}

func TestJournalHandlerMethod(t *testing.T) {
	rr := httptest.NewRecorder()
	NewJournalHandler(&memStore{}).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/journal", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
