package transport

import (
	"context"
	"fmt"
	"net"
	"time"
)

const (
	DefaultDialTimeout = 10 * time.Second
	DefaultKeepAlive   = 30 * time.Second
)

// TCPDialer opens plain TCP connections tuned for low-latency command
// traffic: Nagle coalescing disabled and keep-alive probes enabled.
type TCPDialer struct {
	DialTimeout time.Duration
	KeepAlive   time.Duration
}

func (d *TCPDialer) Dial(ctx context.Context, addr string) (net.Conn, error) {
	timeout := d.DialTimeout
	if timeout == 0 {
		timeout = DefaultDialTimeout
	}
	keepAlive := d.KeepAlive
	if keepAlive == 0 {
		keepAlive = DefaultKeepAlive
	}

	dialer := net.Dialer{
		Timeout:   timeout,
		KeepAlive: keepAlive,
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		if err := tc.SetNoDelay(true); err != nil {
			conn.Close()
			return nil, fmt.Errorf("set TCP_NODELAY: %w", err)
		}
		if err := tc.SetKeepAlive(true); err != nil {
			conn.Close()
			return nil, fmt.Errorf("enable keep-alive: %w", err)
		}
	}

	return conn, nil
}
