package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/quennic/rconx/config"
	"github.com/quennic/rconx/eventbus"
	"github.com/quennic/rconx/netcheck"
	"github.com/quennic/rconx/protocol"
	"github.com/quennic/rconx/transport"
)

// ConnState is the connection lifecycle state. Transitions are
// serialized: Disconnected -> Connecting -> Connected -> Disconnecting
// -> Disconnected, with any Connecting failure falling back to
// Disconnected.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

// String returns a human-readable name for the state.
func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// Reconnection backoff parameters: delay = min(base * 2^attempts, max),
// giving up after MaxReconnectAttempts.
const (
	MaxReconnectAttempts = 5
	baseReconnectDelay   = time.Second
	maxReconnectDelay    = 30 * time.Second

	// DefaultLoginTimeout bounds the login handshake after the socket
	// is established.
	DefaultLoginTimeout = 10 * time.Second
)

// Backoff returns the reconnection delay for the given attempt number.
func Backoff(attempt int) time.Duration {
	d := baseReconnectDelay << attempt
	if d <= 0 || d > maxReconnectDelay {
		return maxReconnectDelay
	}
	return d
}

// HealthChecker runs the pre-flight network probes that gate connect.
// *netcheck.Checker is the production implementation.
type HealthChecker interface {
	Check(ctx context.Context, addr string) netcheck.Report
}

// FrameHandler receives every inbound frame that is not consumed by
// the keepalive machinery. Must be set before Connect.
type FrameHandler func(pkt protocol.Packet)

// ConnectionManagerOptions configures a ConnectionManager.
type ConnectionManagerOptions struct {
	// Addr and Password are parsed into Credentials once per Connect;
	// the host must be a literal IP.
	Addr     string
	ClientID string
	Password string

	Dialer       transport.Dialer
	Checker      HealthChecker
	Bus          *eventbus.Bus
	Clock        Clock
	PingInterval time.Duration
	LoginTimeout time.Duration

	// Inbound read-loop limiter; protects against a flooding server.
	InboundFrameRate  float64
	InboundFrameBurst int
}

// ConnectionManager owns the socket and the connection state machine.
// All writes are serialized through it and a single read loop per
// connection decodes inbound frames.
type ConnectionManager struct {
	opts    ConnectionManagerOptions
	logger  zerolog.Logger
	handler FrameHandler

	state atomic.Int32

	mu         sync.Mutex // connection lock: serializes connect/disconnect
	conn       net.Conn
	connCancel context.CancelFunc
	readDone   chan struct{}
	pingDone   chan struct{}
	attempts   int

	writeMu  sync.Mutex
	pingSeq  atomic.Uint32
	lastPong atomic.Int64
}

// NewConnectionManager creates a manager. SetHandler must be called
// before Connect for inbound frames to be routed.
func NewConnectionManager(logger zerolog.Logger, opts ConnectionManagerOptions) *ConnectionManager {
	logger = logger.With().Str("com", "connection").Logger()
	if opts.Dialer == nil {
		opts.Dialer = &transport.TCPDialer{}
	}
	if opts.Checker == nil {
		opts.Checker = netcheck.New(logger)
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Bus == nil {
		opts.Bus = eventbus.NewWithClock(logger, opts.Clock)
	}
	if opts.PingInterval == 0 {
		opts.PingInterval = config.DefaultPingInterval
	}
	if opts.LoginTimeout == 0 {
		opts.LoginTimeout = DefaultLoginTimeout
	}
	if opts.InboundFrameRate == 0 {
		opts.InboundFrameRate = config.DefaultInboundFrameRate
	}
	if opts.InboundFrameBurst == 0 {
		opts.InboundFrameBurst = config.DefaultInboundFrameBurst
	}
	return &ConnectionManager{
		opts:   opts,
		logger: logger,
	}
}

// SetHandler installs the inbound frame handler.
func (m *ConnectionManager) SetHandler(h FrameHandler) {
	m.handler = h
}

// State returns the current connection state.
func (m *ConnectionManager) State() ConnState {
	return ConnState(m.state.Load())
}

// LastPong returns the arrival time of the most recent keepalive reply,
// or the zero time if none arrived yet.
func (m *ConnectionManager) LastPong() time.Time {
	n := m.lastPong.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Connect establishes the connection: credential construction, health
// pre-check, dial, login handshake. It is an idempotent success when already connected. On
// success it resets the reconnection counter, starts the read and ping
// loops and publishes a Connected event.
func (m *ConnectionManager) Connect(ctx context.Context) error {
	if m.State() == StateConnected {
		return nil
	}

	m.mu.Lock()

	switch m.State() {
	case StateConnected:
		m.mu.Unlock()
		return nil
	case StateDisconnecting:
		m.mu.Unlock()
		return fmt.Errorf("%w: disconnect in progress", ErrConnectionFailed)
	}

	m.state.Store(int32(StateConnecting))
	conn, err := m.establish(ctx)
	if err != nil {
		m.state.Store(int32(StateDisconnected))
		m.mu.Unlock()
		return err
	}

	connCtx, cancel := context.WithCancel(context.Background())
	m.conn = conn
	m.connCancel = cancel
	m.readDone = make(chan struct{})
	m.pingDone = make(chan struct{})
	m.attempts = 0
	m.state.Store(int32(StateConnected))

	go m.readLoop(connCtx, conn, m.readDone)
	go m.pingLoop(connCtx, m.pingDone)
	m.mu.Unlock()

	m.logger.Info().Str("addr", m.opts.Addr).Msg("connected")
	if err := m.opts.Bus.Publish(eventbus.Connected{Addr: m.opts.Addr}); err != nil {
		m.logger.Warn().Err(err).Msg("connected event handler failed")
	}
	return nil
}

// establish builds the credentials, runs the health gate, the dial and
// the login handshake. Caller holds the connection lock.
func (m *ConnectionManager) establish(ctx context.Context) (net.Conn, error) {
	creds, err := ParseCredentials(m.opts.Addr, m.opts.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	report := m.opts.Checker.Check(ctx, creds.Addr())
	if report.Overall == netcheck.HealthPoor {
		return nil, fmt.Errorf("%w: network health poor: %s",
			ErrNetwork, strings.Join(report.Issues, "; "))
	}

	conn, err := m.opts.Dialer.Dial(ctx, creds.Addr())
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", ErrConnectionTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	if err := m.login(conn, creds); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// login performs the handshake: a Login frame with sequence 0, answered
// by Acknowledge on success or Error on rejection.
func (m *ConnectionManager) login(conn net.Conn, creds Credentials) error {
	frame, err := protocol.EncodeLogin(0, m.opts.ClientID, creds.Password)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	if err := conn.SetDeadline(time.Now().Add(m.opts.LoginTimeout)); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	defer conn.SetDeadline(time.Time{})

	if err := protocol.WriteFrame(conn, frame); err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: login write: %v", ErrConnectionTimeout, err)
		}
		return fmt.Errorf("%w: login write: %v", ErrConnectionFailed, err)
	}

	reply, err := protocol.ReadFrame(conn)
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: awaiting login reply: %v", ErrConnectionTimeout, err)
		}
		return fmt.Errorf("%w: login reply: %v", ErrConnectionFailed, err)
	}

	pkt, err := protocol.Decode(reply)
	if err != nil {
		return fmt.Errorf("%w: login reply: %v", ErrConnectionFailed, err)
	}
	if !pkt.Valid {
		return fmt.Errorf("%w: login reply checksum mismatch", ErrConnectionFailed)
	}

	switch pkt.Type {
	case protocol.TypeAcknowledge:
		return nil
	case protocol.TypeError:
		if p, perr := protocol.DecodeErrorPayload(pkt.Payload); perr == nil {
			return fmt.Errorf("%w: %s", ErrAuthFailed, p.Message)
		}
		return ErrAuthFailed
	default:
		return fmt.Errorf("%w: unexpected %s frame during login", ErrConnectionFailed, pkt.Type)
	}
}

// HealthCheck runs the network probes against the configured server
// and returns the report.
func (m *ConnectionManager) HealthCheck(ctx context.Context) netcheck.Report {
	return m.opts.Checker.Check(ctx, m.opts.Addr)
}

// Disconnect gracefully closes the connection. No-op when already
// disconnected.
func (m *ConnectionManager) Disconnect() error {
	return m.teardown("client disconnect", false)
}

// teardown transitions Connected -> Disconnecting -> Disconnected,
// closing the socket and waiting for the per-connection loops to exit.
// Exactly one caller wins the CAS; everyone else no-ops.
func (m *ConnectionManager) teardown(reason string, fromReadLoop bool) error {
	if !m.state.CompareAndSwap(int32(StateConnected), int32(StateDisconnecting)) {
		return nil
	}

	m.mu.Lock()
	conn := m.conn
	cancel := m.connCancel
	readDone := m.readDone
	pingDone := m.pingDone
	m.conn = nil
	m.connCancel = nil
	m.mu.Unlock()

	cancel()
	conn.Close()
	if !fromReadLoop {
		<-readDone
	}
	<-pingDone

	m.state.Store(int32(StateDisconnected))
	m.logger.Info().Str("reason", reason).Msg("disconnected")
	if err := m.opts.Bus.Publish(eventbus.Disconnected{Reason: reason}); err != nil {
		m.logger.Warn().Err(err).Msg("disconnected event handler failed")
	}
	return nil
}

// Reconnect waits out the exponential backoff for the next attempt and
// reports whether the caller should retry Connect. It returns false
// once the attempt budget is spent or the context is cancelled. The
// caller drives the retry loop; nothing reconnects in the background.
func (m *ConnectionManager) Reconnect(ctx context.Context) bool {
	m.mu.Lock()
	if m.attempts >= MaxReconnectAttempts {
		m.mu.Unlock()
		return false
	}
	delay := Backoff(m.attempts)
	m.attempts++
	attempt := m.attempts
	m.mu.Unlock()

	m.logger.Info().
		Int("attempt", attempt).
		Dur("delay", delay).
		Msg("reconnect backoff")

	select {
	case <-m.opts.Clock.After(delay):
		return true
	case <-ctx.Done():
		return false
	}
}

// WriteFrame writes one frame to the connection. Writes from the
// dispatcher, the ping loop and the read loop's pong replies are all
// serialized here.
func (m *ConnectionManager) WriteFrame(frame []byte) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil || m.State() != StateConnected {
		return ErrNotConnected
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := protocol.WriteFrame(conn, frame); err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return nil
}

// readLoop owns inbound decode for one connection. Frames are decoded
// in arrival order; corrupted frames are logged and dropped without
// aborting the loop.
func (m *ConnectionManager) readLoop(ctx context.Context, conn net.Conn, done chan struct{}) {
	defer close(done)

	limiter := rate.NewLimiter(rate.Limit(m.opts.InboundFrameRate), m.opts.InboundFrameBurst)

	for {
		frame, err := protocol.ReadFrame(conn)
		if err != nil {
			if m.State() != StateConnected {
				return
			}
			m.logger.Warn().Err(err).Msg("connection lost")
			m.teardown(fmt.Sprintf("connection lost: %v", err), true)
			return
		}

		if err := limiter.Wait(ctx); err != nil {
			return
		}

		pkt, err := protocol.Decode(frame)
		if err != nil {
			m.logger.Warn().Err(err).Msg("dropping undecodable frame")
			continue
		}
		if !pkt.Valid {
			m.logger.Warn().
				Uint32("seq", pkt.Sequence).
				Stringer("type", pkt.Type).
				Msg("dropping frame with checksum mismatch")
			continue
		}

		switch pkt.Type {
		case protocol.TypePing:
			m.replyPong(pkt.Sequence)
		case protocol.TypePong:
			m.lastPong.Store(time.Now().UnixNano())
		default:
			if m.handler != nil {
				m.handler(pkt)
			} else {
				m.logger.Debug().Stringer("type", pkt.Type).Msg("no handler installed, frame dropped")
			}
		}
	}
}

func (m *ConnectionManager) replyPong(seq uint32) {
	frame, err := protocol.Encode(protocol.TypePong, seq, nil)
	if err != nil {
		return
	}
	if err := m.WriteFrame(frame); err != nil {
		m.logger.Debug().Err(err).Msg("pong write failed")
	}
}

// pingLoop sends keepalive probes at the configured interval for the
// lifetime of one connection.
func (m *ConnectionManager) pingLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.opts.Clock.After(m.opts.PingInterval):
		}

		frame, err := protocol.Encode(protocol.TypePing, m.pingSeq.Add(1), nil)
		if err != nil {
			return
		}
		if err := m.WriteFrame(frame); err != nil {
			if !errors.Is(err, ErrNotConnected) {
				m.logger.Debug().Err(err).Msg("ping write failed")
			}
			return
		}
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
