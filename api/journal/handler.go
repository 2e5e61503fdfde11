package journal

import (
	"net/http"
	"time"

	"github.com/kilianp07/smartshift/api"
	"github.com/kilianp07/smartshift/core/engine"
	infrajournal "github.com/kilianp07/smartshift/infra/journal"
)

// NewJournalHandler exposes the lifecycle journal via GET /api/journal.
// Query parameters start and end (RFC 3339), kind and station_id filter the
// records.
func NewJournalHandler(store infrajournal.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		q := infrajournal.Query{}
		if s := r.URL.Query().Get("start"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				q.Start = t
			}
		}
		if s := r.URL.Query().Get("end"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				q.End = t
			}
		}
		q.Kind = engine.EventKind(r.URL.Query().Get("kind"))
		q.StationID = r.URL.Query().Get("station_id")
		records, err := store.Query(r.Context(), q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if records == nil {
			records = []infrajournal.Record{}
		}
		api.WriteJSON(w, http.StatusOK, records)
	})
}
