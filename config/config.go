// Package config loads the service configuration from a YAML or JSON file
// with SMARTSHIFT_ environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/smartshift/core/factory"
	"github.com/kilianp07/smartshift/core/metrics"
	"github.com/kilianp07/smartshift/infra/journal"
	"github.com/kilianp07/smartshift/infra/mqtt"
	"github.com/kilianp07/smartshift/infra/routing"
)

// EnvPrefix marks environment overrides. A double underscore separates
// levels: SMARTSHIFT_BOOKING__BUFFER_MINUTES=10.
const EnvPrefix = "SMARTSHIFT_"

type Config struct {
	LogLevel string               `json:"log_level"`
	HTTP     HTTPConfig           `json:"http"`
	Booking  BookingConfig        `json:"booking"`
	Storage  factory.ModuleConfig `json:"storage"`
	Catalog  CatalogConfig        `json:"catalog"`
	Routing  routing.Config       `json:"routing"`
	Metrics  metrics.Config       `json:"metrics"`
	MQTT     mqtt.Config          `json:"mqtt"`
	Journal  journal.Config       `json:"journal"`
	Sentry   SentryConfig         `json:"sentry"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		LogLevel: "info",
		HTTP:     HTTPConfig{Addr: ":8080"},
		Booking:  DefaultBooking(),
		Storage:  factory.ModuleConfig{Type: "sqlite"},
	}
}

// Load reads path, applies environment overrides on top of the defaults and
// validates the result. An empty path loads the defaults and the
// environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.Storage.Type == "" {
		c.Storage.Type = "sqlite"
	}
	c.Booking.SetDefaults()
	c.Routing.SetDefaults()
	c.Journal.SetDefaults()
	if c.MQTT.Enabled() {
		c.MQTT.SetDefaults()
	}
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Booking.Validate(); err != nil {
		return fmt.Errorf("booking: %w", err)
	}
	if err := c.Routing.Validate(); err != nil {
		return fmt.Errorf("routing: %w", err)
	}
	if err := c.Journal.Validate(); err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	if err := c.MQTT.Validate(); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	return nil
}

// HTTPConfig configures the JSON API served by `serve`.
type HTTPConfig struct {
	Addr string `json:"addr"`
}

// CatalogConfig selects the station source.
type CatalogConfig struct {
	// File is a YAML or JSON station list. Empty uses the demo stations.
	File string `json:"file"`
	// Seed drives the demo availability templates. Zero derives it from
	// the current date so the templates are stable for a day.
	Seed int64 `json:"seed"`
	// DemoHistory fills an empty charging history with generated sessions.
	DemoHistory bool `json:"demo_history"`
}
