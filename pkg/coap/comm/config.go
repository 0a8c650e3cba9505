package comm

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/robotalks/coap.go/pkg/coap/msgs"
)

// Config tunes conns and registries.
type Config struct {
	// MaxExchanges is the number of exchange slots per conn.
	MaxExchanges int `yaml:"max_exchanges"`
	// BufferSize is the receive buffer capacity, also the largest frame
	// sent. It is advertised to the peer as Max-Message-Size.
	BufferSize SizeBytes `yaml:"buffer_size"`
	// MessageSize is the payload ceiling above which bodies are sent
	// block-wise. The peer's Max-Message-Size lowers it further.
	MessageSize SizeBytes `yaml:"message_size"`
	// RequestTimeout applies to requests without their own timeout.
	RequestTimeout Duration `yaml:"request_timeout"`
	// WakeInterval bounds the worker wait while exchanges are pending.
	WakeInterval Duration `yaml:"wake_interval"`
	// ExchangeLifetime is the quiet period before a slot is reused.
	ExchangeLifetime Duration `yaml:"exchange_lifetime"`
	// ReuseBlockToken keeps the token across block continuations.
	ReuseBlockToken bool `yaml:"reuse_block_token"`
	// BlockWise advertises block-wise transfer support in CSM.
	BlockWise bool `yaml:"block_wise"`
	// BERT enables bulk blocks when the ceiling exceeds 1024 bytes.
	BERT bool `yaml:"bert"`
	// MaxConnections is the capacity of a registry.
	MaxConnections int `yaml:"max_connections"`
}

// DefaultMaxMessageSize is assumed for the peer until its CSM arrives.
const DefaultMaxMessageSize = 1152

const minBufferSize = 64

var defaultConfig = Config{
	MaxExchanges:     4,
	BufferSize:       4096,
	MessageSize:      1024,
	RequestTimeout:   Duration(10 * time.Second),
	WakeInterval:     Duration(100 * time.Millisecond),
	ExchangeLifetime: Duration(2 * time.Second),
	BlockWise:        true,
	MaxConnections:   16,
}

func init() {
	LoadEnv()
}

// LoadEnv applies env vars on top of the defaults.
func LoadEnv() {
	if val := os.Getenv("COAP_MAX_EXCHANGES"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			defaultConfig.MaxExchanges = n
		}
	}
	if val := os.Getenv("COAP_REQUEST_TIMEOUT"); val != "" {
		var d Duration
		if err := d.parse(val); err == nil {
			defaultConfig.RequestTimeout = d
		}
	}
}

// DefaultConfig returns a copy of the default configuration.
func DefaultConfig() *Config {
	conf := defaultConfig
	return &conf
}

// LoadConfigFile reads a yaml file on top of the defaults.
func LoadConfigFile(fn string) (*Config, error) {
	data, err := os.ReadFile(fn)
	if err != nil {
		return nil, err
	}
	return ParseConfig(data)
}

// ParseConfig parses yaml content on top of the defaults.
func ParseConfig(data []byte) (*Config, error) {
	conf := DefaultConfig()
	if err := yaml.Unmarshal(data, conf); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch {
	case c.MaxExchanges <= 0:
		return fmt.Errorf("max_exchanges must be positive")
	case c.BufferSize < minBufferSize:
		return fmt.Errorf("buffer_size must be at least %d", minBufferSize)
	case c.MessageSize < 16:
		return fmt.Errorf("message_size must be at least 16")
	case c.WakeInterval <= 0:
		return fmt.Errorf("wake_interval must be positive")
	case c.RequestTimeout < 0 || c.ExchangeLifetime < 0:
		return fmt.Errorf("durations must not be negative")
	case c.MaxConnections <= 0:
		return fmt.Errorf("max_connections must be positive")
	}
	return nil
}

// BlockSize returns the block size class for the given peer limit.
func (c *Config) BlockSize(peerMax int) msgs.BlockSize {
	return msgs.BlockSizeFor(c.ceiling(peerMax), c.BERT)
}

func (c *Config) ceiling(peerMax int) int {
	ceiling := int(c.MessageSize)
	if peerMax > 0 && peerMax < ceiling {
		ceiling = peerMax
	}
	return ceiling
}

// SizeBytes is a number of bytes, parsed from strings like "4KiB" or integers.
type SizeBytes int

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*s = 0
		return nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		*s = SizeBytes(v)
		return nil
	}
	return fmt.Errorf("invalid size value: %q", node.Value)
}

// MarshalYAML implements yaml.Marshaler.
func (s SizeBytes) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}

// String implements Stringer.
func (s SizeBytes) String() string {
	return humanize.IBytes(uint64(s))
}

// Duration parses from strings like "100ms" or plain numbers of seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.parse(node.Value)
}

func (d *Duration) parse(val string) error {
	raw := strings.TrimSpace(val)
	if raw == "" {
		*d = 0
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(f * float64(time.Second))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", val)
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration().String(), nil
}

// Duration converts to time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
