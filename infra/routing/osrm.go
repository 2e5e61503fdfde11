// Package routing implements core/routing.Router against an OSRM server.
package routing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"

	"github.com/kilianp07/smartshift/auth"
	"github.com/kilianp07/smartshift/core/model"
	core "github.com/kilianp07/smartshift/core/routing"
	"github.com/kilianp07/smartshift/infra/logger"
)

// DefaultBaseURL is the public OSRM demo server.
const DefaultBaseURL = "https://router.project-osrm.org"

// ErrNoRoute is returned when OSRM answers without a route.
var ErrNoRoute = errors.New("no route found")

// Config configures the OSRM client and its circuit breaker.
type Config struct {
	Enabled bool          `json:"enabled"`
	BaseURL string        `json:"base_url"`
	Profile string        `json:"profile"`
	Timeout time.Duration `json:"timeout"`
	// MaxFailures consecutive failures open the breaker for OpenFor.
	MaxFailures uint32        `json:"max_failures"`
	OpenFor     time.Duration `json:"open_for"`
	// Auth is set for hosted OSRM deployments behind an OAuth2 server.
	Auth auth.Conf `json:"auth"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Profile == "" {
		c.Profile = "driving"
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.MaxFailures == 0 {
		c.MaxFailures = 3
	}
	if c.OpenFor <= 0 {
		c.OpenFor = 30 * time.Second
	}
}

// Validate checks the base URL.
func (c Config) Validate() error {
	if c.Enabled && !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("routing base_url %q must be http(s)", c.BaseURL)
	}
	return c.Auth.Validate()
}

// OSRM asks an OSRM server for driving routes. Calls go through a circuit
// breaker so a dead provider costs one timeout, not one per request.
type OSRM struct {
	client  *resty.Client
	profile string
	cb      *gobreaker.CircuitBreaker
	log     logger.Logger
}

// NewOSRM creates a client for cfg.
func NewOSRM(cfg Config) *OSRM {
	cfg.SetDefaults()
	log := logger.New("osrm")
	o := &OSRM{
		client: resty.New().
			SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
			SetTimeout(cfg.Timeout).
			SetHeader("Accept", "application/json"),
		profile: cfg.Profile,
		log:     log,
	}
	if cfg.Auth.Enabled() {
		auth.NewClientCred(cfg.Auth).Attach(o.client)
	}
	o.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "osrm",
		MaxRequests: 1,
		Timeout:     cfg.OpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNoRoute)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnf("circuit breaker %s: %s -> %s", name, from, to)
		},
	})
	return o
}

type osrmResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Geometry struct {
			Coordinates [][2]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

// Route implements core/routing.Router. OSRM takes and returns [lng, lat];
// the path is returned as [lat, lng].
func (o *OSRM) Route(ctx context.Context, from, to model.Coordinates) (*core.Route, error) {
	out, err := o.cb.Execute(func() (interface{}, error) {
		return o.fetch(ctx, from, to)
	})
	if err != nil {
		return nil, err
	}
	return out.(*core.Route), nil
}

// State reports the breaker state.
func (o *OSRM) State() gobreaker.State { return o.cb.State() }

func (o *OSRM) fetch(ctx context.Context, from, to model.Coordinates) (*core.Route, error) {
	coords := fmt.Sprintf("%s,%s;%s,%s", ff(from.Lng), ff(from.Lat), ff(to.Lng), ff(to.Lat))
	var body osrmResponse
	res, err := o.client.R().
		SetContext(ctx).
		SetPathParam("profile", o.profile).
		SetRawPathParams(map[string]string{"coords": coords}).
		SetQueryParams(map[string]string{"overview": "full", "geometries": "geojson"}).
		SetResult(&body).
		SetError(&body).
		Get("/route/v1/{profile}/{coords}")
	if err != nil {
		return nil, fmt.Errorf("osrm request: %w", err)
	}
	if res.StatusCode() != http.StatusOK {
		if body.Code == "NoRoute" {
			return nil, ErrNoRoute
		}
		return nil, fmt.Errorf("osrm status %d: %s", res.StatusCode(), body.Message)
	}
	if body.Code != "Ok" || len(body.Routes) == 0 {
		return nil, ErrNoRoute
	}
	r := body.Routes[0]
	path := make([][2]float64, len(r.Geometry.Coordinates))
	for i, c := range r.Geometry.Coordinates {
		path[i] = [2]float64{c[1], c[0]}
	}
	o.log.Debugf("route %.1f km, %.0f s, %d points", r.Distance/1000, r.Duration, len(path))
	return &core.Route{
		Path:            path,
		DistanceKm:      strconv.FormatFloat(r.Distance/1000, 'f', 1, 64),
		DurationMinutes: int(math.Round(r.Duration / 60)),
	}, nil
}

func ff(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
