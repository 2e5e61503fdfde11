// Package mqtt publishes engine events to an MQTT broker and accepts scan
// commands from station readers.
package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	coremon "github.com/kilianp07/smartshift/core/monitoring"
	"github.com/kilianp07/smartshift/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker      string          `json:"broker"`
	ClientID    string          `json:"client_id"`
	Username    string          `json:"username"`
	Password    string          `json:"password"`
	TopicPrefix string          `json:"topic_prefix"`
	UseTLS      bool            `json:"use_tls"`
	ClientCert  string          `json:"client_cert"`
	ClientKey   string          `json:"client_key"`
	CABundle    string          `json:"ca_bundle"`
	AuthMethod  string          `json:"auth_method"`
	QoS         map[string]byte `json:"qos"`
	MaxRetries  int             `json:"max_retries"`
	BackoffMS   int             `json:"backoff_ms"`
	// PublishTicks forwards the per-second session refresh.
	PublishTicks bool        `json:"publish_ticks"`
	TLSConfig    *tls.Config `json:"-"`
}

// Enabled reports whether a broker is configured.
func (c Config) Enabled() bool { return c.Broker != "" }

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "smartshift"
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = "smartshift"
	}
	c.TopicPrefix = strings.TrimSuffix(c.TopicPrefix, "/")
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS <= 0 {
		c.BackoffMS = 100
	}
}

// Validate checks the QoS levels and the auth method.
func (c Config) Validate() error {
	for k, q := range c.QoS {
		if q > 2 {
			return fmt.Errorf("mqtt qos %s: %d out of range", k, q)
		}
	}
	switch c.AuthMethod {
	case "", "username_password", "certificate", "both":
	default:
		return fmt.Errorf("mqtt auth_method %q unknown", c.AuthMethod)
	}
	return nil
}

// Topic joins the prefix and the given suffix.
func (c Config) Topic(suffix string) string {
	return c.TopicPrefix + "/" + suffix
}

func (c Config) qos(kind string) byte {
	return c.QoS[kind]
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// ScanRequest is the payload a station reader publishes on <prefix>/scan.
type ScanRequest struct {
	StationID     string `json:"station_id"`
	ReservationID string `json:"reservation_id,omitempty"`
}

// ScanHandler reacts to a scan command.
type ScanHandler func(ScanRequest)

// PahoClient publishes JSON payloads below the configured topic prefix.
type PahoClient struct {
	cli    pahoClient
	cfg    Config
	log    logger.Logger
	mu     sync.Mutex
	onScan ScanHandler
}

// NewPahoClient connects to the broker, announces itself on <prefix>/status
// and subscribes to <prefix>/scan.
func NewPahoClient(cfg Config) (*PahoClient, error) {
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	log := logger.New("mqtt_client")
	pc := &PahoClient{cfg: cfg, log: log}

	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected")
		c.Publish(cfg.Topic("status"), 1, true, "online")
		if token := c.Subscribe(cfg.Topic("scan"), cfg.qos("scan"), pc.handleScan); token.Wait() && token.Error() != nil {
			log.Errorf("subscribe error: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	pc.cli = c
	return pc, nil
}

// NewClientOptions builds mqtt client options from Config. The will message
// marks the service offline on <prefix>/status.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS || cfg.AuthMethod == "certificate" || cfg.AuthMethod == "both" {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.TopicPrefix != "" {
		opts.SetWill(cfg.Topic("status"), "offline", 1, true)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caBytes) {
		return nil, errors.New("ca bundle contains no certificate")
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

// OnScan installs the handler for scan commands.
func (p *PahoClient) OnScan(h ScanHandler) {
	p.mu.Lock()
	p.onScan = h
	p.mu.Unlock()
}

func (p *PahoClient) handleScan(_ paho.Client, msg paho.Message) {
	var req ScanRequest
	if err := json.Unmarshal(msg.Payload(), &req); err != nil {
		p.log.Errorf("failed to decode scan: %v", err)
		return
	}
	p.mu.Lock()
	h := p.onScan
	p.mu.Unlock()
	if h == nil {
		p.log.Warnf("scan for station %s ignored: no handler", req.StationID)
		return
	}
	h(req)
}

// PublishJSON encodes v and publishes it on <prefix>/<suffix>, retrying with
// exponential backoff. kind selects the QoS level.
func (p *PahoClient) PublishJSON(suffix, kind string, retained bool, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	topic := p.cfg.Topic(suffix)
	backoff := time.Duration(p.cfg.BackoffMS) * time.Millisecond
	var publishErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		token := p.cli.Publish(topic, p.cfg.qos(kind), retained, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			p.log.Debugf("published %s", topic)
			return nil
		}
		p.log.Errorf("publish %s attempt %d failed: %v", topic, attempt+1, publishErr)
		if attempt < p.cfg.MaxRetries {
			time.Sleep(backoff * time.Duration(1<<attempt))
		}
	}
	coremon.CaptureException(publishErr, map[string]string{"module": "mqtt", "topic": topic})
	return publishErr
}

// Disconnect marks the service offline and closes the connection.
func (p *PahoClient) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Publish(p.cfg.Topic("status"), 1, true, "offline").Wait()
		p.cli.Disconnect(250)
	}
}
