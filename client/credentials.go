package client

import (
	"fmt"
	"net"
	"strconv"
)

// Password length bounds enforced at credential construction.
const (
	MinPasswordLength = 1
	MaxPasswordLength = 32
)

// Credentials identifies a server endpoint and the password used to
// authenticate against it. Immutable once constructed; comparable by
// value except for the Host slice.
type Credentials struct {
	Host     net.IP
	Port     int
	Password string
}

// NewCredentials validates the parts and builds a Credentials value.
func NewCredentials(host net.IP, port int, password string) (Credentials, error) {
	c := Credentials{Host: host, Port: port, Password: password}
	if err := c.Validate(); err != nil {
		return Credentials{}, err
	}
	return c, nil
}

// ParseCredentials accepts an "ip:port" endpoint string plus a password.
func ParseCredentials(endpoint, password string) (Credentials, error) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		return Credentials{}, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return Credentials{}, fmt.Errorf("invalid host %q: not an IP address", host)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Credentials{}, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	return NewCredentials(ip, port, password)
}

// Validate checks the port range and the password length.
func (c Credentials) Validate() error {
	if c.Host == nil {
		return fmt.Errorf("host must not be empty")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if len(c.Password) < MinPasswordLength || len(c.Password) > MaxPasswordLength {
		return fmt.Errorf("password must be between %d and %d characters, got %d",
			MinPasswordLength, MaxPasswordLength, len(c.Password))
	}
	return nil
}

// Addr returns the endpoint in host:port form.
func (c Credentials) Addr() string {
	return net.JoinHostPort(c.Host.String(), strconv.Itoa(c.Port))
}
