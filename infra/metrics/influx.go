package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/smartshift/core/metrics"
	"github.com/kilianp07/smartshift/infra/logger"
)

// InfluxSink writes booking and session events to an InfluxDB instance using
// the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the client resources.
func (s *InfluxSink) Close() { s.client.Close() }

// RecordBooking writes a booking_event point.
func (s *InfluxSink) RecordBooking(ev coremetrics.BookingEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("booking_event").
		AddTag("station_id", ev.StationID).
		AddTag("action", string(ev.Action)).
		AddField("reservation_id", ev.ReservationID).
		AddField("duration_min", ev.DurationMinutes).
		AddField("estimated_price", round2(ev.EstimatedPrice))
	if ev.Reason != "" {
		p = p.AddField("reason", ev.Reason)
	}
	p = p.SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordSession writes a charging_session point.
func (s *InfluxSink) RecordSession(ev coremetrics.SessionEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("charging_session").
		AddTag("station_id", ev.StationID).
		AddTag("action", string(ev.Action)).
		AddTag("walk_up", strconv.FormatBool(ev.WalkUp)).
		AddField("session_id", ev.SessionID).
		AddField("duration_min", ev.DurationMinutes)
	if ev.Action == coremetrics.SessionStopped {
		p = p.AddField("elapsed_s", round2(ev.Elapsed.Seconds())).
			AddField("kwh", round2(ev.KWh)).
			AddField("total_price", round2(ev.TotalPrice))
	}
	p = p.SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordReview writes a session_review point.
func (s *InfluxSink) RecordReview(ev coremetrics.ReviewEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("session_review").
		AddField("session_id", ev.SessionID).
		AddField("rating", ev.Rating).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
