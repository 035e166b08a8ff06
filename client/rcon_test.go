package client

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/quennic/rconx/config"
	"github.com/quennic/rconx/eventbus"
	"github.com/quennic/rconx/netcheck"
	"github.com/quennic/rconx/protocol"
	"github.com/quennic/rconx/security"
)

// startGameServer runs a scripted server: it answers the login, echoes
// a canned response to /status commands and acknowledges everything
// else. Frames pushed into the events channel are sent unsolicited.
func startGameServer(t *testing.T, events chan []byte) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		serverLogin(t, conn)

		inbound := make(chan protocol.Packet)
		go func() {
			defer close(inbound)
			for {
				frame, err := protocol.ReadFrame(conn)
				if err != nil {
					return
				}
				pkt, err := protocol.Decode(frame)
				if err != nil {
					continue
				}
				inbound <- pkt
			}
		}()

		for {
			select {
			case pkt, ok := <-inbound:
				if !ok {
					return
				}
				switch pkt.Type {
				case protocol.TypeCommand:
					if string(pkt.Payload) == "/status" {
						serverWrite(t, conn, protocol.TypeResponse, pkt.Sequence, []byte("players online: 3"))
					} else {
						serverWrite(t, conn, protocol.TypeAcknowledge, pkt.Sequence, nil)
					}
				case protocol.TypePing:
					serverWrite(t, conn, protocol.TypePong, pkt.Sequence, nil)
				}
			case frame := <-events:
				if err := protocol.WriteFrame(conn, frame); err != nil {
					return
				}
			}
		}
	}()
	return ln.Addr().String()
}

func testClientConfig(addr string) *config.Client {
	cfg := &config.Client{
		Server:   addr,
		Password: "secret",
	}
	cfg.ApplyDefaults()
	cfg.PingInterval = time.Hour
	cfg.Dispatch.CommandTimeout = 2 * time.Second
	return cfg
}

func TestClientEndToEnd(t *testing.T) {
	events := make(chan []byte, 1)
	addr := startGameServer(t, events)

	r, err := New(testClientConfig(addr), zerolog.Nop(), WithHealthChecker(healthyChecker()))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { r.Close() })

	messages := subscribe(r.Events(), eventbus.TypeMessage)

	if err := r.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if r.Status() != StateConnected {
		t.Fatalf("status after connect: %v", r.Status())
	}

	resp, err := r.SendCommand(context.Background(), "/status", PriorityNormal)
	if err != nil {
		t.Fatalf("SendCommand failed: %v", err)
	}
	if resp != "players online: 3" {
		t.Errorf("response: got %q", resp)
	}

	// Acknowledged commands complete with an empty response.
	resp, err = r.SendCommand(context.Background(), "/say hello", PriorityHigh)
	if err != nil {
		t.Fatalf("SendCommand failed: %v", err)
	}
	if resp != "" {
		t.Errorf("expected empty response for acknowledged command, got %q", resp)
	}

	// Unsolicited server events surface as Message events on the bus.
	frame, err := protocol.EncodeEvent(0, "player joined", time.Now().Unix())
	if err != nil {
		t.Fatalf("encode event: %v", err)
	}
	events <- frame
	select {
	case evt := <-messages:
		if evt.(eventbus.Message).Text != "player joined" {
			t.Errorf("message event: %v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("no Message event for the unsolicited server event")
	}

	report := r.Report(context.Background())
	if report.State != StateConnected {
		t.Errorf("report state: %v", report.State)
	}
	if report.Network.Overall != netcheck.HealthExcellent {
		t.Errorf("report health: %v", report.Network.Overall)
	}

	if err := r.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if r.Status() != StateDisconnected {
		t.Fatalf("status after close: %v", r.Status())
	}
}

func TestSendCommandGatedBySecurity(t *testing.T) {
	addr := startGameServer(t, make(chan []byte))

	r, err := New(testClientConfig(addr), zerolog.Nop(), WithHealthChecker(healthyChecker()))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { r.Close() })

	if err := r.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if _, err := r.SendCommand(context.Background(), "/shutdown now", PriorityCritical); !errors.Is(err, security.ErrDangerousCommand) {
		t.Fatalf("expected ErrDangerousCommand, got %v", err)
	}
	if _, err := r.SendCommand(context.Background(), "no prefix", PriorityNormal); !errors.Is(err, security.ErrInvalidParameters) {
		t.Fatalf("expected ErrInvalidParameters, got %v", err)
	}
}

func TestSendCommandNotConnected(t *testing.T) {
	cfg := testClientConfig("127.0.0.1:1")
	cfg.Dispatch.MaxRetries = 0
	cfg.Dispatch.CommandTimeout = 100 * time.Millisecond

	r, err := New(cfg, zerolog.Nop(), WithHealthChecker(healthyChecker()))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { r.Close() })

	if _, err := r.SendCommand(context.Background(), "/status", PriorityNormal); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestConnectWithRetryGivesUp(t *testing.T) {
	fc := &fakeClock{}
	cfg := testClientConfig("127.0.0.1:1")

	r, err := New(cfg, zerolog.Nop(),
		WithHealthChecker(healthyChecker()),
		WithClock(fc),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { r.Close() })

	err = r.ConnectWithRetry(context.Background())
	if err == nil {
		t.Fatal("expected ConnectWithRetry to fail against a closed port")
	}
	if len(fc.recorded()) != MaxReconnectAttempts {
		t.Errorf("expected %d backoff waits, got %v", MaxReconnectAttempts, fc.recorded())
	}
}
