package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/quic-go/quic-go"
)

// Client is the full client configuration.
type Client struct {
	ClientID  string `yaml:"client_id"`
	Server    string `yaml:"server"` // host:port
	Password  string `yaml:"password"`
	Transport string `yaml:"transport"` // tcp (default) or quic

	PingInterval time.Duration `yaml:"ping_interval"`

	Dispatch Dispatch  `yaml:"dispatch"`
	Security Security  `yaml:"security"`
	Quic     Quic      `yaml:"quic"`
	TLS      ClientTLS `yaml:"tls"`
}

// Dispatch tunes the command dispatcher.
type Dispatch struct {
	QueueCapacity  int           `yaml:"queue_capacity"`
	MaxInflight    int           `yaml:"max_inflight"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
	MaxRetries     int           `yaml:"max_retries"`
}

// Security tunes the command security gate and the inbound limiter.
type Security struct {
	CommandPrefix     string        `yaml:"command_prefix"`
	RateLimit         int           `yaml:"rate_limit"`
	RateWindow        time.Duration `yaml:"rate_window"`
	MaxFailedAttempts int           `yaml:"max_failed_attempts"`
	BlockDuration     time.Duration `yaml:"block_duration"`
	InboundFrameRate  float64       `yaml:"inbound_frame_rate"`
	InboundFrameBurst int           `yaml:"inbound_frame_burst"`
}

// Quic tunes the optional QUIC transport.
type Quic struct {
	KeepAlivePeriod      time.Duration `yaml:"keep_alive_period"`
	HandshakeIdleTimeout time.Duration `yaml:"handshake_idle_timeout"`
	MaxIdleTimeout       time.Duration `yaml:"max_idle_timeout"`
	Allow0RTT            bool          `yaml:"allow_0rtt"`
}

// GetConfig converts the YAML block into a quic-go configuration.
func (q Quic) GetConfig() *quic.Config {
	if q.MaxIdleTimeout == 0 {
		q.MaxIdleTimeout = 5 * time.Minute
	}
	return &quic.Config{
		KeepAlivePeriod:      q.KeepAlivePeriod,
		HandshakeIdleTimeout: q.HandshakeIdleTimeout,
		MaxIdleTimeout:       q.MaxIdleTimeout,
		Allow0RTT:            q.Allow0RTT,
	}
}

// ClientTLS configures certificate verification for the QUIC transport.
type ClientTLS struct {
	CACertFile string `yaml:"ca_cert_file"`
	ServerName string `yaml:"server_name"`
}

// BuildTLSConfig loads the CA certificate, if configured, and returns
// a TLS configuration for the QUIC dialer.
func (t ClientTLS) BuildTLSConfig() (*tls.Config, error) {
	cfg := &tls.Config{ServerName: t.ServerName}

	if t.CACertFile != "" {
		caCertPEM, err := os.ReadFile(t.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("read CA cert: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCertPEM) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		cfg.RootCAs = pool
	}

	return cfg, nil
}

// ApplyDefaults fills zero-valued fields with defaults.
func (c *Client) ApplyDefaults() {
	if c.ClientID == "" {
		c.ClientID = GenerateClientID()
	}
	if c.Transport == "" {
		c.Transport = TransportTCP
	}
	if c.PingInterval == 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.Dispatch.QueueCapacity == 0 {
		c.Dispatch.QueueCapacity = DefaultQueueCapacity
	}
	if c.Dispatch.MaxInflight == 0 {
		c.Dispatch.MaxInflight = DefaultMaxInflight
	}
	if c.Dispatch.CommandTimeout == 0 {
		c.Dispatch.CommandTimeout = DefaultCommandTimeout
	}
	if c.Dispatch.MaxRetries == 0 {
		c.Dispatch.MaxRetries = DefaultMaxRetries
	}
	if c.Security.InboundFrameRate == 0 {
		c.Security.InboundFrameRate = DefaultInboundFrameRate
	}
	if c.Security.InboundFrameBurst == 0 {
		c.Security.InboundFrameBurst = DefaultInboundFrameBurst
	}
}

// Validate checks the configuration for structural problems.
func (c *Client) Validate() error {
	if err := ValidateAddress(c.Server); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if len(c.Password) < 1 || len(c.Password) > 32 {
		return fmt.Errorf("password must be between 1 and 32 characters, got %d", len(c.Password))
	}
	switch c.Transport {
	case "", TransportTCP, TransportQUIC:
	default:
		return fmt.Errorf("unknown transport %q (expected %s or %s)", c.Transport, TransportTCP, TransportQUIC)
	}
	if len(c.Security.CommandPrefix) > 1 {
		return fmt.Errorf("command_prefix must be a single character, got %q", c.Security.CommandPrefix)
	}
	return nil
}
