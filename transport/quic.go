package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/quic-go/quic-go"
)

// ALPN protocol identifier for the QUIC transport.
const alpnProtocol = "rconx"

// QUICDialer opens a QUIC connection and exposes one bidirectional
// stream as a net.Conn. It gives deployments an encrypted transport
// without changing the frame layer above it.
type QUICDialer struct {
	TLS  *tls.Config
	Quic *quic.Config
}

func (d *QUICDialer) Dial(ctx context.Context, addr string) (net.Conn, error) {
	tlsConf := d.TLS
	if tlsConf == nil {
		tlsConf = &tls.Config{}
	} else {
		tlsConf = tlsConf.Clone()
	}
	if len(tlsConf.NextProtos) == 0 {
		tlsConf.NextProtos = []string{alpnProtocol}
	}

	conn, err := quic.DialAddr(ctx, addr, tlsConf, d.Quic)
	if err != nil {
		return nil, fmt.Errorf("dial quic %s: %w", addr, err)
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(0, "open stream failed")
		return nil, fmt.Errorf("open quic stream: %w", err)
	}

	return &streamConn{conn: conn, stream: stream}, nil
}

// streamConn adapts a QUIC stream to net.Conn. Addresses come from the
// connection, deadlines and data transfer from the stream.
type streamConn struct {
	conn   *quic.Conn
	stream *quic.Stream
}

func (c *streamConn) Read(p []byte) (int, error)  { return c.stream.Read(p) }
func (c *streamConn) Write(p []byte) (int, error) { return c.stream.Write(p) }

func (c *streamConn) Close() error {
	c.stream.Close()
	return c.conn.CloseWithError(0, "shutdown")
}

func (c *streamConn) LocalAddr() net.Addr  { return c.conn.LocalAddr() }
func (c *streamConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

func (c *streamConn) SetDeadline(t time.Time) error      { return c.stream.SetDeadline(t) }
func (c *streamConn) SetReadDeadline(t time.Time) error  { return c.stream.SetReadDeadline(t) }
func (c *streamConn) SetWriteDeadline(t time.Time) error { return c.stream.SetWriteDeadline(t) }
