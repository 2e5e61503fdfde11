package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/kilianp07/smartshift/config"
	"github.com/kilianp07/smartshift/core/availability"
	"github.com/kilianp07/smartshift/core/catalog"
	"github.com/kilianp07/smartshift/core/engine"
	coremetrics "github.com/kilianp07/smartshift/core/metrics"
	"github.com/kilianp07/smartshift/core/model"
	coremon "github.com/kilianp07/smartshift/core/monitoring"
	"github.com/kilianp07/smartshift/core/routing"
	"github.com/kilianp07/smartshift/core/session"
	corestorage "github.com/kilianp07/smartshift/core/storage"
	"github.com/kilianp07/smartshift/infra/journal"
	"github.com/kilianp07/smartshift/infra/logger"
	"github.com/kilianp07/smartshift/infra/metrics"
	"github.com/kilianp07/smartshift/infra/monitoring"
	"github.com/kilianp07/smartshift/infra/mqtt"
	infrarouting "github.com/kilianp07/smartshift/infra/routing"
	_ "github.com/kilianp07/smartshift/infra/storage"
	"github.com/kilianp07/smartshift/internal/eventbus"
)

// Service wires the booking engine to its collaborators.
type Service struct {
	Engine  *engine.Engine
	Catalog *catalog.Memory
	Router  routing.Router
	Journal journal.Store
	Sink    coremetrics.MetricsSink

	cfg   *config.Config
	store corestorage.Store
	log   logger.Logger

	ctx         context.Context
	cancel      context.CancelFunc
	journalDone <-chan struct{}
}

// New creates a Service from the configuration and restores the persisted
// state. Background forwarders and the HTTP API only start with Run.
func New(cfg *config.Config) (*Service, error) {
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	logg := logger.New("service")
	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	loc, err := cfg.Booking.Location()
	if err != nil {
		return nil, err
	}
	stations, err := loadStations(cfg.Catalog, time.Now().In(loc))
	if err != nil {
		return nil, err
	}
	cat, err := catalog.NewMemory(stations)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	store, err := corestorage.NewStore(cfg.Storage)
	if err != nil {
		return nil, err
	}
	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		closeQuietly(store)
		return nil, err
	}
	jstore, err := journal.Open(cfg.Journal)
	if err != nil {
		closeQuietly(store)
		return nil, fmt.Errorf("journal: %w", err)
	}

	calc := cfg.Booking.Calculator()
	eng := engine.New(engine.Options{
		Store:        store,
		Catalog:      cat,
		Resolver:     availability.NewResolver(cfg.Booking.Policy()),
		Calculator:   &calc,
		Fallback:     cfg.Booking.Fallback(),
		Metrics:      sink,
		Logger:       logger.New("engine"),
		Location:     loc,
		TickInterval: cfg.Booking.TickInterval,
	})

	ctx, cancel := context.WithCancel(context.Background())
	svc := &Service{
		Engine:  eng,
		Catalog: cat,
		Journal: jstore,
		Sink:    sink,
		cfg:     cfg,
		store:   store,
		log:     logg,
		ctx:     ctx,
		cancel:  cancel,
	}
	if jstore != nil {
		svc.journalDone = journal.Start(ctx, jstore, eng.Events(), logger.New("journal"))
	}
	if cfg.Sentry.DSN != "" {
		monitoring.StartBreadcrumbs(ctx, eng.Events())
	}
	if cfg.Routing.Enabled {
		svc.Router = infrarouting.NewOSRM(cfg.Routing)
	}

	if err := eng.Load(ctx); err != nil {
		_ = svc.Close()
		return nil, fmt.Errorf("load state: %w", err)
	}
	if cfg.Catalog.DemoHistory {
		rng := rand.New(rand.NewSource(seedFor(cfg.Catalog.Seed, eng.Now().In(loc))))
		if eng.SeedHistory(ctx, catalog.DemoHistory(rng, stations, eng.Now().In(loc))) {
			logg.Infof("seeded demo charging history")
		}
	}
	return svc, nil
}

// loadStations reads the configured station file, or generates the demo
// catalog.
func loadStations(cfg config.CatalogConfig, now time.Time) ([]model.Station, error) {
	if cfg.File != "" {
		st, err := catalog.LoadFile(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}
		return st, nil
	}
	return catalog.Demo(rand.New(rand.NewSource(seedFor(cfg.Seed, now))))
}

// seedFor returns seed, or the YYYYMMDD of now when seed is zero so the demo
// templates stay stable for a day.
func seedFor(seed int64, now time.Time) int64 {
	if seed != 0 {
		return seed
	}
	return int64(now.Year()*10000 + int(now.Month())*100 + now.Day())
}

// Run starts the MQTT bridge, the state gauges and the HTTP API. It blocks
// until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	var waits []<-chan struct{}

	if s.cfg.MQTT.Enabled() {
		client, err := mqtt.NewPahoClient(s.cfg.MQTT)
		if err != nil {
			return fmt.Errorf("mqtt client: %w", err)
		}
		defer client.Disconnect()
		client.OnScan(mqtt.ScanHandlerFor(ctx, s.Engine, logger.New("mqtt_scan")))
		var ticks *eventbus.TypedBus[session.Tick]
		if s.cfg.MQTT.PublishTicks {
			ticks = s.Engine.TickEvents()
		}
		waits = append(waits, mqtt.StartEventPublisher(ctx, client, s.Engine.Events(), ticks, logger.New("mqtt_publisher")))
	}

	gauges, err := metrics.NewStateGauges(nil)
	if err != nil {
		return fmt.Errorf("state gauges: %w", err)
	}
	waits = append(waits, metrics.StartEventCollector(ctx, s.Engine.Events(), s.Engine.Snapshot, gauges))

	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		go func() {
			defer coremon.Recover()
			if err := metrics.StartPromServer(ctx, addr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	srv := &http.Server{Addr: s.cfg.HTTP.Addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warnf("http shutdown: %v", err)
		}
	}()
	s.log.Infof("serving API on %s", s.cfg.HTTP.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	for _, w := range waits {
		<-w
	}
	return nil
}

// Close stops the engine, drains the journal and releases the backends.
func (s *Service) Close() error {
	s.Engine.Close()
	if s.journalDone != nil {
		<-s.journalDone
	}
	s.cancel()
	var errs []error
	if s.Journal != nil {
		errs = append(errs, s.Journal.Close())
	}
	if c, ok := s.store.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if c, ok := s.Sink.(interface{ Close() }); ok {
		c.Close()
	}
	coremon.Flush(2 * time.Second)
	return errors.Join(errs...)
}

func closeQuietly(v any) {
	if c, ok := v.(io.Closer); ok {
		_ = c.Close()
	}
}
