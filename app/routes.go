package app

import (
	"net/http"

	"github.com/kilianp07/smartshift/api/booking"
	journalapi "github.com/kilianp07/smartshift/api/journal"
	"github.com/kilianp07/smartshift/api/stations"
	"github.com/kilianp07/smartshift/infra/logger"
	"github.com/kilianp07/smartshift/infra/metrics"
)

// Handler returns the JSON API and the /metrics endpoint.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	e, cat := s.Engine, s.Catalog

	mux.Handle("GET /api/stations", stations.NewListHandler(cat))
	mux.Handle("GET /api/stations/{id}/slots", stations.NewSlotsHandler(cat, e, s.Sink, logger.New("api")))
	mux.Handle("GET /api/stations/{id}/quote", stations.NewQuoteHandler(cat, e))
	mux.Handle("GET /api/stations/{id}/route", stations.NewRouteHandler(cat, s.Router))

	mux.Handle("/api/reservations", booking.NewReservationsHandler(e))
	mux.Handle("DELETE /api/reservations/{id}", booking.NewCancelHandler(e))
	mux.Handle("POST /api/scan", booking.NewScanHandler(e))
	mux.Handle("POST /api/walkup", booking.NewWalkUpHandler(e))
	mux.Handle("GET /api/session", booking.NewSessionHandler(e))
	mux.Handle("POST /api/session/stop", booking.NewStopHandler(e))
	mux.Handle("GET /api/history", booking.NewHistoryHandler(e))
	mux.Handle("GET /api/history/export", booking.NewExportHandler(e))
	mux.Handle("POST /api/history/{id}/review", booking.NewReviewHandler(e))

	if s.Journal != nil {
		mux.Handle("GET /api/journal", journalapi.NewJournalHandler(s.Journal))
	}
	mux.Handle("GET /metrics", metrics.Handler(nil))
	return mux
}
