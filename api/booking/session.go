package booking

import (
	"net/http"
	"time"

	"github.com/kilianp07/smartshift/api"
	"github.com/kilianp07/smartshift/core/history"
	"github.com/kilianp07/smartshift/core/model"
	"github.com/kilianp07/smartshift/core/session"
	"github.com/kilianp07/smartshift/pkg/export"
)

// SessionView is the charging view of the live session.
type SessionView struct {
	Active       bool                 `json:"active"`
	Session      *model.ActiveSession `json:"session,omitempty"`
	Elapsed      string               `json:"elapsed,omitempty"`
	RemainingSec int64                `json:"remaining_seconds,omitempty"`
	Progress     float64              `json:"progress,omitempty"`
}

// View renders s at now.
func View(s model.ActiveSession, now time.Time) SessionView {
	return SessionView{
		Active:       true,
		Session:      &s,
		Elapsed:      session.FormatElapsed(session.Elapsed(s, now)),
		RemainingSec: int64(session.Remaining(s, now) / time.Second),
		Progress:     session.Progress(s, now),
	}
}

// NewSessionHandler exposes the live session via GET /api/session.
func NewSessionHandler(e Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s, ok := e.ActiveSession()
		if !ok {
			api.WriteJSON(w, http.StatusOK, SessionView{})
			return
		}
		api.WriteJSON(w, http.StatusOK, View(s, e.Now()))
	})
}

// NewStopHandler ends the live session via POST /api/session/stop and
// returns the billed history entry.
func NewStopHandler(e Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		done, err := e.Stop(r.Context())
		if err != nil {
			api.Error(w, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, done)
	})
}

// HistoryResponse is returned by GET /api/history.
type HistoryResponse struct {
	Summary  history.Summary         `json:"summary"`
	Sessions []model.ChargingSession `json:"sessions"`
}

// NewHistoryHandler lists the charging history with its summary via
// GET /api/history.
func NewHistoryHandler(e Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h := e.History()
		api.WriteJSON(w, http.StatusOK, HistoryResponse{Summary: history.Summarize(h), Sessions: h})
	})
}

// ReviewRequest is the body of POST /api/history/{id}/review.
type ReviewRequest struct {
	Rating   int    `json:"rating"`
	Feedback string `json:"feedback,omitempty"`
}

// NewReviewHandler rates a history entry via POST /api/history/{id}/review.
func NewReviewHandler(e Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req ReviewRequest
		if err := api.DecodeJSON(r, &req); err != nil {
			api.Error(w, err)
			return
		}
		cs, err := e.Review(r.Context(), r.PathValue("id"), req.Rating, req.Feedback)
		if err != nil {
			api.Error(w, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, cs)
	})
}

// NewExportHandler downloads the history via
// GET /api/history/export?format=json|csv|html.
func NewExportHandler(e Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		f := export.Format(r.URL.Query().Get("format"))
		switch f {
		case export.FormatCSV:
			w.Header().Set("Content-Type", "text/csv")
		case export.FormatChart:
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
		case export.FormatJSON, "":
			w.Header().Set("Content-Type", "application/json")
		default:
			http.Error(w, "unknown format", http.StatusBadRequest)
			return
		}
		if err := export.Write(w, f, e.History()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}
