// Package client implements the RCON client: connection lifecycle,
// prioritized command dispatch, security gating and event delivery.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/quennic/rconx/config"
	"github.com/quennic/rconx/eventbus"
	"github.com/quennic/rconx/netcheck"
	"github.com/quennic/rconx/protocol"
	"github.com/quennic/rconx/security"
	"github.com/quennic/rconx/transport"
)

// Option overrides a collaborator of the RconClient, mainly for tests.
type Option func(*options)

type options struct {
	dialer  transport.Dialer
	checker HealthChecker
	clock   Clock
}

// WithDialer overrides the transport dialer chosen from the config.
func WithDialer(d transport.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithHealthChecker overrides the pre-flight network checker.
func WithHealthChecker(c HealthChecker) Option {
	return func(o *options) { o.checker = c }
}

// WithClock overrides the time source.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// RconClient is the top-level facade: it validates commands through
// the security gate, dispatches them over the managed connection and
// fans server events out through the bus.
type RconClient struct {
	cfg        *config.Client
	conn       *ConnectionManager
	dispatcher *Dispatcher
	gate       *security.Gate
	bus        *eventbus.Bus
	logger     zerolog.Logger
}

// New wires a client from its configuration. The configuration must
// already be validated.
func New(cfg *config.Client, logger zerolog.Logger, opts ...Option) (*RconClient, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = SystemClock{}
	}
	if o.dialer == nil {
		d, err := dialerFor(cfg)
		if err != nil {
			return nil, err
		}
		o.dialer = d
	}

	logger = logger.With().Str("com", "rcon").Logger()

	var prefix byte
	if cfg.Security.CommandPrefix != "" {
		prefix = cfg.Security.CommandPrefix[0]
	}
	gate := security.New(logger, security.Options{
		CommandPrefix:     prefix,
		RateLimit:         cfg.Security.RateLimit,
		RateWindow:        cfg.Security.RateWindow,
		MaxFailedAttempts: cfg.Security.MaxFailedAttempts,
		BlockDuration:     cfg.Security.BlockDuration,
		Clock:             o.clock,
	})

	bus := eventbus.NewWithClock(logger, o.clock)

	conn := NewConnectionManager(logger, ConnectionManagerOptions{
		Addr:              cfg.Server,
		ClientID:          cfg.ClientID,
		Password:          cfg.Password,
		Dialer:            o.dialer,
		Checker:           o.checker,
		Bus:               bus,
		Clock:             o.clock,
		PingInterval:      cfg.PingInterval,
		InboundFrameRate:  cfg.Security.InboundFrameRate,
		InboundFrameBurst: cfg.Security.InboundFrameBurst,
	})

	dispatcher := NewDispatcher(logger, conn, DispatcherOptions{
		QueueCapacity:  cfg.Dispatch.QueueCapacity,
		MaxInflight:    cfg.Dispatch.MaxInflight,
		CommandTimeout: cfg.Dispatch.CommandTimeout,
		MaxRetries:     cfg.Dispatch.MaxRetries,
		Clock:          o.clock,
	})

	r := &RconClient{
		cfg:        cfg,
		conn:       conn,
		dispatcher: dispatcher,
		gate:       gate,
		bus:        bus,
		logger:     logger,
	}
	conn.SetHandler(r.route)
	return r, nil
}

func dialerFor(cfg *config.Client) (transport.Dialer, error) {
	switch cfg.Transport {
	case "", config.TransportTCP:
		return &transport.TCPDialer{}, nil
	case config.TransportQUIC:
		tlsConf, err := cfg.TLS.BuildTLSConfig()
		if err != nil {
			return nil, fmt.Errorf("quic transport: %w", err)
		}
		return &transport.QUICDialer{TLS: tlsConf, Quic: cfg.Quic.GetConfig()}, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// route receives every inbound non-keepalive frame from the read loop.
// Correlated frames complete their command; everything else becomes an
// event.
func (r *RconClient) route(pkt protocol.Packet) {
	if r.dispatcher.Correlate(pkt) {
		return
	}

	switch pkt.Type {
	case protocol.TypeEvent:
		p, err := protocol.DecodeEventPayload(pkt.Payload)
		if err != nil {
			r.logger.Warn().Err(err).Msg("dropping undecodable event payload")
			return
		}
		if err := r.bus.Publish(eventbus.Message{Text: p.Message}); err != nil {
			r.logger.Warn().Err(err).Msg("message handler failed")
		}
	case protocol.TypeError:
		p, err := protocol.DecodeErrorPayload(pkt.Payload)
		if err != nil {
			r.logger.Warn().Err(err).Msg("dropping undecodable error payload")
			return
		}
		if err := r.bus.Publish(eventbus.ServerError{Code: p.Code, Message: p.Message}); err != nil {
			r.logger.Warn().Err(err).Msg("server error handler failed")
		}
	default:
		r.logger.Debug().
			Stringer("type", pkt.Type).
			Uint32("seq", pkt.Sequence).
			Msg("dropping uncorrelated frame")
	}
}

// Connect establishes the connection.
func (r *RconClient) Connect(ctx context.Context) error {
	return r.conn.Connect(ctx)
}

// ConnectWithRetry keeps attempting Connect, waiting out the
// reconnection backoff between attempts, until it succeeds, the retry
// budget is spent, or the context is cancelled. Authentication
// rejections are final.
func (r *RconClient) ConnectWithRetry(ctx context.Context) error {
	for {
		err := r.conn.Connect(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrAuthFailed) {
			return err
		}
		r.logger.Warn().Err(err).Msg("connect attempt failed")
		if !r.conn.Reconnect(ctx) {
			return fmt.Errorf("reconnect budget exhausted: %w", err)
		}
	}
}

// Disconnect gracefully closes the connection.
func (r *RconClient) Disconnect() error {
	return r.conn.Disconnect()
}

// SendCommand validates the command through the security gate, then
// dispatches it and waits for the server's response text.
func (r *RconClient) SendCommand(ctx context.Context, text string, priority Priority) (string, error) {
	if err := r.gate.Validate(text, r.cfg.ClientID); err != nil {
		return "", err
	}
	payload, err := r.dispatcher.Submit(ctx, text, priority)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

// Status returns the current connection state.
func (r *RconClient) Status() ConnState {
	return r.conn.State()
}

// Report is a snapshot of the client's condition.
type Report struct {
	State    ConnState
	LastPong time.Time
	Network  netcheck.Report
}

// Report gathers the connection state, keepalive progress and a fresh
// network health report.
func (r *RconClient) Report(ctx context.Context) Report {
	return Report{
		State:    r.conn.State(),
		LastPong: r.conn.LastPong(),
		Network:  r.conn.HealthCheck(ctx),
	}
}

// Events exposes the bus for lifecycle and message subscriptions.
func (r *RconClient) Events() *eventbus.Bus {
	return r.bus
}

// WaitForConnected blocks until the next Connected event or the
// timeout.
func (r *RconClient) WaitForConnected(ctx context.Context, timeout time.Duration) bool {
	return r.bus.WaitFor(ctx, eventbus.TypeConnected, timeout)
}

// Close cancels all outstanding commands and closes the connection.
func (r *RconClient) Close() error {
	r.dispatcher.Shutdown()
	return r.conn.Disconnect()
}
