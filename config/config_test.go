package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeFile(t, "config.yaml", `log_level: debug
http:
  addr: ":9000"
booking:
  closing_hour: 20
  end_by_closing: false
  buffer_minutes: 0
  timezone: "Europe/Berlin"
  tick_interval: "500ms"
storage:
  type: redis
  conf:
    addr: "localhost:6379"
    ttl: "720h"
catalog:
  file: "stations.yaml"
  seed: 42
routing:
  enabled: true
  base_url: "http://osrm.local:5000"
metrics:
  prometheus_addr: ":9100"
  sinks:
    - type: "nop"
mqtt:
  broker: "tcp://localhost:1883"
  topic_prefix: "munich"
  qos:
    event: 1
journal:
  backend: jsonl
  path: "/var/log/smartshift/journal.jsonl"
sentry:
  dsn: "https://key@sentry.example/1"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"log_level", cfg.LogLevel, "debug"},
		{"http.addr", cfg.HTTP.Addr, ":9000"},
		{"opening_hour default", cfg.Booking.OpeningHour, 6},
		{"closing_hour", cfg.Booking.ClosingHour, 20},
		{"day_shift default", cfg.Booking.DayShiftSlots, 6},
		{"end_by_closing", cfg.Booking.EndByClosing, false},
		{"buffer_minutes", cfg.Booking.BufferMinutes, 0},
		{"default power", cfg.Booking.DefaultPowerKW, 11.0},
		{"tick_interval", cfg.Booking.TickInterval, 500 * time.Millisecond},
		{"storage.type", cfg.Storage.Type, "redis"},
		{"storage.conf.addr", cfg.Storage.Conf["addr"], "localhost:6379"},
		{"catalog.file", cfg.Catalog.File, "stations.yaml"},
		{"catalog.seed", cfg.Catalog.Seed, int64(42)},
		{"routing.enabled", cfg.Routing.Enabled, true},
		{"routing.profile default", cfg.Routing.Profile, "driving"},
		{"metrics.prometheus_addr", cfg.Metrics.PrometheusAddr, ":9100"},
		{"metrics.sinks", len(cfg.Metrics.Sinks) == 1 && cfg.Metrics.Sinks[0].Type == "nop", true},
		{"mqtt.topic_prefix", cfg.MQTT.TopicPrefix, "munich"},
		{"mqtt.client_id default", cfg.MQTT.ClientID, "smartshift"},
		{"mqtt.qos", cfg.MQTT.QoS["event"], byte(1)},
		{"journal.max_size default", cfg.Journal.MaxSizeMB, 10},
		{"sentry.dsn", cfg.Sentry.DSN, "https://key@sentry.example/1"},
	}
	for _, c := range checks {
		assert.Equal(t, c.want, c.got, c.name)
	}

	loc, err := cfg.Booking.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())
	assert.Equal(t, 20, cfg.Booking.Policy().ClosingHour)
	assert.Equal(t, 0, cfg.Booking.Calculator().BufferMinutes)
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 5, cfg.Booking.BufferMinutes)
	assert.True(t, cfg.Booking.EndByClosing)
	assert.Equal(t, 45.0, cfg.Booking.Fallback().PriceCents)
	assert.False(t, cfg.MQTT.Enabled())
	assert.Empty(t, cfg.Journal.Backend)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeFile(t, "config.json", `{"booking":{"buffer_minutes":5},"storage":{"type":"memory"}}`)
	t.Setenv("SMARTSHIFT_BOOKING__BUFFER_MINUTES", "10")
	t.Setenv("SMARTSHIFT_STORAGE__TYPE", "sqlite")
	t.Setenv("SMARTSHIFT_STORAGE__CONF__PATH", "/tmp/s.db")
	t.Setenv("SMARTSHIFT_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Booking.BufferMinutes)
	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, "/tmp/s.db", cfg.Storage.Conf["path"])
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadInvalid(t *testing.T) {
	cases := map[string]string{
		"window":   "booking:\n  opening_hour: 23\n  closing_hour: 6\n",
		"buffer":   "booking:\n  buffer_minutes: -1\n",
		"timezone": "booking:\n  timezone: Mars/Olympus\n",
		"journal":  "journal:\n  backend: csv\n",
		"routing":  "routing:\n  enabled: true\n  base_url: osrm.local\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, "config.yaml", data))
			assert.Error(t, err)
		})
	}

	_, err := Load(writeFile(t, "config.toml", ""))
	assert.ErrorContains(t, err, "unsupported config format")
}
