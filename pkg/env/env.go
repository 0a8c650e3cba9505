// Package env sets up client connections from the environment: URL, config
// file, env vars and command line flags.
package env

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/robotalks/coap.go/pkg/coap/comm"
	"github.com/robotalks/coap.go/pkg/transport/mqtt"
	"github.com/robotalks/coap.go/pkg/transport/stream"
	"github.com/robotalks/coap.go/pkg/transport/websocket"
)

// URL schemes.
const (
	SchemeTCP  = "coap+tcp"
	SchemeTLS  = "coaps+tcp"
	SchemeWS   = "coap+ws"
	SchemeWSS  = "coaps+ws"
	SchemeMQTT = "coap+mqtt"
)

// Config provides common options to connect a CoAP peer.
type Config struct {
	// URL of the peer, e.g. coap+tcp://host:5683,
	// or coap+mqtt://broker:1883/prefix?peer=name for the MQTT tunnel.
	URL string
	// ConfigFile is a yaml file of comm.Config.
	ConfigFile string
	// MetricsAddr serves /metrics if not empty.
	MetricsAddr string
	// Insecure skips TLS certificate verification.
	Insecure bool
	// MQTTClientID overrides the MQTT tunnel client id.
	MQTTClientID string
}

var defaultConfig = Config{
	URL: "coap+tcp://localhost:5683",
}

func init() {
	loadEnv()
}

// LoadEnv applies env vars on top of the defaults, including those of
// comm.DefaultConfig. It's used after env vars are changed, e.g. from .env.
func LoadEnv() {
	loadEnv()
	comm.LoadEnv()
}

func loadEnv() {
	if val := os.Getenv("COAP_URL"); val != "" {
		defaultConfig.URL = val
	}
	if val := os.Getenv("COAP_CONFIG"); val != "" {
		defaultConfig.ConfigFile = val
	}
	if val := os.Getenv("COAP_METRICS_ADDR"); val != "" {
		defaultConfig.MetricsAddr = val
	}
	if val := os.Getenv("COAP_INSECURE"); val != "" {
		defaultConfig.Insecure, _ = strconv.ParseBool(val)
	}
	if val := os.Getenv("COAP_MQTT_CLIENT_ID"); val != "" {
		defaultConfig.MQTTClientID = val
	}
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// BindFlags binds persistent flags of cmd.
func (c *Config) BindFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVarP(&c.URL, "url", "u", c.URL, "URL of the CoAP peer.")
	flags.StringVarP(&c.ConfigFile, "config", "c", c.ConfigFile, "Connection config file (yaml).")
	flags.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "Serve Prometheus metrics on this address.")
	flags.BoolVarP(&c.Insecure, "insecure", "k", c.Insecure, "Skip TLS certificate verification.")
	flags.StringVar(&c.MQTTClientID, "mqtt-client-id", c.MQTTClientID, "MQTT tunnel client id.")
}

// LoadConnConfig loads ConfigFile, or returns the defaults.
func (c *Config) LoadConnConfig() (*comm.Config, error) {
	if c.ConfigFile == "" {
		return comm.DefaultConfig(), nil
	}
	return comm.LoadConfigFile(c.ConfigFile)
}

// Endpoint is a resolved URL.
type Endpoint struct {
	Dialer comm.Dialer
	Hook   comm.SocketHook
	// Addr is passed to Dialer.
	Addr string
}

// Endpoint resolves URL into a dialer and address.
func (c *Config) Endpoint() (*Endpoint, error) {
	u, err := url.Parse(c.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid URL %q: host required", c.URL)
	}
	switch u.Scheme {
	case SchemeTCP:
		return &Endpoint{
			Dialer: &stream.Dialer{},
			Hook:   stream.Hook(stream.DefaultOptions),
			Addr:   u.Host,
		}, nil
	case SchemeTLS:
		return &Endpoint{
			Dialer: stream.NewTLSDialer(c.Insecure),
			Hook:   stream.Hook(stream.DefaultOptions),
			Addr:   u.Host,
		}, nil
	case SchemeWS, SchemeWSS:
		d := &websocket.Dialer{Secure: u.Scheme == SchemeWSS, Path: u.Path}
		if d.Secure && c.Insecure {
			d.TLS = stream.NewTLSDialer(true).TLS
			d.TLS.NextProtos = nil
		}
		return &Endpoint{Dialer: d, Addr: u.Host}, nil
	case SchemeMQTT:
		peer := u.Query().Get("peer")
		if peer == "" {
			return nil, fmt.Errorf("invalid URL %q: peer required", c.URL)
		}
		broker := *u
		broker.Scheme = "mqtt"
		q := broker.Query()
		q.Del("peer")
		broker.RawQuery = q.Encode()
		return &Endpoint{
			Dialer: &mqtt.Dialer{BrokerURL: broker.String(), ClientID: c.MQTTClientID},
			Addr:   peer,
		}, nil
	}
	return nil, fmt.Errorf("unknown URL scheme: %q", u.Scheme)
}

// Connect creates a conn and connects the peer. events is optional.
func (c *Config) Connect(ctx context.Context, events comm.EventHandler) (*comm.Conn, error) {
	connConf, err := c.LoadConnConfig()
	if err != nil {
		return nil, err
	}
	ep, err := c.Endpoint()
	if err != nil {
		return nil, err
	}
	conn := comm.NewConn(connConf)
	conn.Dialer, conn.SocketHook, conn.Events = ep.Dialer, ep.Hook, events
	if err = conn.Connect(ctx, ep.Addr); err != nil {
		return nil, err
	}
	glog.V(1).Infof("connected %s", c.URL)
	return conn, nil
}
