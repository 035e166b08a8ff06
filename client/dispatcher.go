package client

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/quennic/rconx/config"
	"github.com/quennic/rconx/protocol"
)

// FrameWriter is the outbound half of the connection as seen by the
// dispatcher. *ConnectionManager implements it.
type FrameWriter interface {
	WriteFrame(frame []byte) error
}

// DefaultRetryBackoffUnit scales the exponential retry backoff
// (unit * 2^retry_count). Tests shrink it to keep retries fast.
const DefaultRetryBackoffUnit = time.Second

// DispatcherOptions tunes the dispatcher. Zero values fall back to the
// config defaults.
type DispatcherOptions struct {
	QueueCapacity    int
	MaxInflight      int
	CommandTimeout   time.Duration
	MaxRetries       int
	RetryBackoffUnit time.Duration
	Clock            Clock
}

func (o *DispatcherOptions) applyDefaults() {
	if o.QueueCapacity == 0 {
		o.QueueCapacity = config.DefaultQueueCapacity
	}
	if o.MaxInflight == 0 {
		o.MaxInflight = config.DefaultMaxInflight
	}
	if o.CommandTimeout == 0 {
		o.CommandTimeout = config.DefaultCommandTimeout
	}
	if o.RetryBackoffUnit == 0 {
		o.RetryBackoffUnit = DefaultRetryBackoffUnit
	}
	if o.Clock == nil {
		o.Clock = SystemClock{}
	}
}

// Dispatcher turns submitted commands into exactly one completion each,
// respecting priority order, the in-flight concurrency limit, the
// per-command timeout and the transient-failure retry budget.
type Dispatcher struct {
	opts   DispatcherOptions
	writer FrameWriter
	logger zerolog.Logger

	mu    sync.Mutex // guards queue
	queue commandQueue
	wake  chan struct{}

	pendingMu sync.Mutex // guards pending, independent of queue and socket
	pending   map[uint32]*command

	seq   atomic.Uint32
	order atomic.Uint64
	slots chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// NewDispatcher creates a dispatcher and starts its dispatch loop.
func NewDispatcher(logger zerolog.Logger, writer FrameWriter, opts DispatcherOptions) *Dispatcher {
	opts.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		opts:    opts,
		writer:  writer,
		logger:  logger.With().Str("com", "dispatcher").Logger(),
		wake:    make(chan struct{}, 1),
		pending: make(map[uint32]*command),
		slots:   make(chan struct{}, opts.MaxInflight),
		ctx:     ctx,
		cancel:  cancel,
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Submit queues a command and blocks until it completes, fails or the
// context is cancelled. It returns the response payload on success.
func (d *Dispatcher) Submit(ctx context.Context, text string, priority Priority) ([]byte, error) {
	cmd := &command{
		seq:        d.seq.Add(1),
		text:       text,
		priority:   priority,
		enqueuedAt: d.opts.Clock.Now(),
		order:      d.order.Add(1),
		ctx:        ctx,
		resp:       make(chan result, 1),
		done:       make(chan result, 1),
	}

	// closed is checked under the queue lock: Shutdown flips it before
	// draining the queue under the same lock, so no command can be
	// pushed after the drain.
	d.mu.Lock()
	if d.closed.Load() {
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: dispatcher shut down", ErrCancelled)
	}
	if len(d.queue) >= d.opts.QueueCapacity {
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: %d commands pending", ErrQueueFull, d.opts.QueueCapacity)
	}
	heap.Push(&d.queue, cmd)
	d.mu.Unlock()
	d.signal()

	select {
	case res := <-cmd.done:
		return res.payload, res.err
	case <-ctx.Done():
		cmd.complete(nil, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err()))
		d.purge(cmd.seq)
		return nil, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
	}
}

// Correlate routes an inbound Response, Acknowledge or Error frame to
// the in-flight command with the matching sequence. It reports whether
// the frame was claimed; unclaimed frames belong to the event path.
func (d *Dispatcher) Correlate(pkt protocol.Packet) bool {
	switch pkt.Type {
	case protocol.TypeResponse, protocol.TypeAcknowledge, protocol.TypeError:
	default:
		return false
	}

	d.pendingMu.Lock()
	cmd, ok := d.pending[pkt.Sequence]
	if ok {
		delete(d.pending, pkt.Sequence)
	}
	d.pendingMu.Unlock()
	if !ok {
		return false
	}

	switch pkt.Type {
	case protocol.TypeResponse:
		cmd.resp <- result{payload: pkt.Payload}
	case protocol.TypeAcknowledge:
		cmd.resp <- result{}
	case protocol.TypeError:
		p, err := protocol.DecodeErrorPayload(pkt.Payload)
		if err != nil {
			cmd.resp <- result{err: fmt.Errorf("%w: undecodable error payload: %v", ErrServerError, err)}
		} else {
			cmd.resp <- result{err: fmt.Errorf("%w %d: %s", ErrServerError, p.Code, p.Message)}
		}
	}
	return true
}

// QueuedCount returns the number of commands waiting for dispatch.
func (d *Dispatcher) QueuedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// InflightCount returns the number of commands awaiting a response.
func (d *Dispatcher) InflightCount() int {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()
	return len(d.pending)
}

// Shutdown cancels all queued and in-flight commands and stops the
// dispatch loop. Safe to call more than once.
func (d *Dispatcher) Shutdown() {
	if !d.closed.CompareAndSwap(false, true) {
		return
	}
	d.cancel()

	d.mu.Lock()
	queued := d.queue
	d.queue = nil
	d.mu.Unlock()
	for _, cmd := range queued {
		cmd.complete(nil, fmt.Errorf("%w: dispatcher shut down", ErrCancelled))
	}

	d.wg.Wait()
	d.logger.Debug().Msg("dispatcher stopped")
}

func (d *Dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-d.wake:
		}
		d.drain()
	}
}

// drain dispatches queued commands until the queue is empty. A free
// in-flight slot is acquired before popping so the highest-priority
// command at dispatch time wins the slot.
func (d *Dispatcher) drain() {
	for {
		select {
		case d.slots <- struct{}{}:
		case <-d.ctx.Done():
			return
		}

		cmd := d.pop()
		if cmd == nil {
			<-d.slots
			return
		}

		d.wg.Add(1)
		go func(cmd *command) {
			defer d.wg.Done()
			defer func() { <-d.slots }()
			d.execute(cmd)
		}(cmd)
	}
}

func (d *Dispatcher) pop() *command {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		return nil
	}
	return heap.Pop(&d.queue).(*command)
}

// execute drives one command through write, response wait, and the
// retry loop until it completes.
func (d *Dispatcher) execute(cmd *command) {
	logger := d.logger.With().
		Uint32("seq", cmd.seq).
		Stringer("priority", cmd.priority).
		Logger()

	for {
		if err := cmd.ctx.Err(); err != nil {
			cmd.complete(nil, fmt.Errorf("%w: %v", ErrCancelled, err))
			return
		}

		frame, err := protocol.Encode(protocol.TypeCommand, cmd.seq, []byte(cmd.text))
		if err != nil {
			cmd.complete(nil, err)
			return
		}

		d.register(cmd)
		if err := d.writer.WriteFrame(frame); err != nil {
			d.purge(cmd.seq)
			if !transient(err) {
				cmd.complete(nil, err)
				return
			}
			if !d.backoffRetry(cmd, err, logger) {
				return
			}
			continue
		}

		select {
		case res := <-cmd.resp:
			cmd.complete(res.payload, res.err)
			return
		case <-d.opts.Clock.After(d.opts.CommandTimeout):
			d.purge(cmd.seq)
			if !d.backoffRetry(cmd, fmt.Errorf("%w after %s", ErrTimeout, d.opts.CommandTimeout), logger) {
				return
			}
		case <-cmd.ctx.Done():
			d.purge(cmd.seq)
			cmd.complete(nil, fmt.Errorf("%w: %v", ErrCancelled, cmd.ctx.Err()))
			return
		case <-d.ctx.Done():
			d.purge(cmd.seq)
			cmd.complete(nil, fmt.Errorf("%w: dispatcher shut down", ErrCancelled))
			return
		}
	}
}

// backoffRetry charges one retry credit and waits out the exponential
// backoff. It returns false after completing the command with its
// final error, or when the wait is interrupted.
func (d *Dispatcher) backoffRetry(cmd *command, cause error, logger zerolog.Logger) bool {
	if cmd.retryCount >= d.opts.MaxRetries {
		if cmd.retryCount == 0 {
			cmd.complete(nil, cause)
		} else {
			cmd.complete(nil, fmt.Errorf("%w after %d retries: %w", ErrMaxRetriesExceeded, cmd.retryCount, cause))
		}
		return false
	}
	cmd.retryCount++
	delay := d.opts.RetryBackoffUnit * (1 << cmd.retryCount)

	logger.Warn().
		Err(cause).
		Int("retry", cmd.retryCount).
		Dur("backoff", delay).
		Msg("command retry scheduled")

	select {
	case <-d.opts.Clock.After(delay):
		return true
	case <-cmd.ctx.Done():
		cmd.complete(nil, fmt.Errorf("%w: %v", ErrCancelled, cmd.ctx.Err()))
		return false
	case <-d.ctx.Done():
		cmd.complete(nil, fmt.Errorf("%w: dispatcher shut down", ErrCancelled))
		return false
	}
}

func (d *Dispatcher) register(cmd *command) {
	d.pendingMu.Lock()
	d.pending[cmd.seq] = cmd
	d.pendingMu.Unlock()
}

func (d *Dispatcher) purge(seq uint32) {
	d.pendingMu.Lock()
	delete(d.pending, seq)
	d.pendingMu.Unlock()
}
