// Package transport abstracts the stream the client talks over so the
// connection manager is independent of the underlying network stack.
package transport

import (
	"context"
	"net"
)

// Dialer opens a stream connection to a server address.
type Dialer interface {
	Dial(ctx context.Context, addr string) (net.Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, addr string) (net.Conn, error)

func (f DialerFunc) Dial(ctx context.Context, addr string) (net.Conn, error) {
	return f(ctx, addr)
}
