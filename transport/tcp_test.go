package transport

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestTCPDialerConnects(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		accepted <- conn
	}()

	d := &TCPDialer{}
	conn, err := d.Dial(context.Background(), ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	if _, ok := conn.(*net.TCPConn); !ok {
		t.Errorf("expected *net.TCPConn, got %T", conn)
	}

	select {
	case serverSide := <-accepted:
		serverSide.Close()
	case <-time.After(time.Second):
		t.Fatal("server never saw the connection")
	}
}

func TestTCPDialerHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := &TCPDialer{}
	// TEST-NET-1 address: the dial must fail fast on the cancelled context.
	if _, err := d.Dial(ctx, "192.0.2.1:2301"); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestDialerFuncAdapter(t *testing.T) {
	called := false
	d := DialerFunc(func(ctx context.Context, addr string) (net.Conn, error) {
		called = true
		return nil, context.Canceled
	})

	_, err := d.Dial(context.Background(), "x:1")
	if !called || err != context.Canceled {
		t.Error("DialerFunc must forward the call")
	}
}
