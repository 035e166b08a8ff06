// Package eventbus fans connection lifecycle and server message
// notifications out to subscribers without blocking the I/O path.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Type identifies a kind of event.
type Type int

const (
	TypeConnected Type = iota
	TypeDisconnected
	TypeMessage
	TypeServerError
)

// String returns a human-readable name for the event type.
func (t Type) String() string {
	switch t {
	case TypeConnected:
		return "connected"
	case TypeDisconnected:
		return "disconnected"
	case TypeMessage:
		return "message"
	case TypeServerError:
		return "server_error"
	default:
		return "unknown"
	}
}

// Event is the closed set of payload variants delivered by the bus.
type Event interface {
	EventType() Type
}

// Connected is published after a successful connect and login.
type Connected struct {
	Addr string
}

// Disconnected is published when the connection is closed or lost.
type Disconnected struct {
	Reason string
}

// Message is published for unsolicited server messages.
type Message struct {
	Text string
}

// ServerError is published for uncorrelated error frames.
type ServerError struct {
	Code    uint32
	Message string
}

func (Connected) EventType() Type    { return TypeConnected }
func (Disconnected) EventType() Type { return TypeDisconnected }
func (Message) EventType() Type      { return TypeMessage }
func (ServerError) EventType() Type  { return TypeServerError }

// Clock supplies the WaitFor timeout timer; tests inject a manual one.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Handler consumes an event. A non-nil error is surfaced to the
// publisher; it never stops delivery to other handlers.
type Handler func(Event) error

type subscription struct {
	id      uuid.UUID
	handler Handler
}

// Bus is a thread-safe publish/subscribe hub.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Type][]subscription
	logger zerolog.Logger
	clock  Clock
}

// New creates an empty bus on the system clock.
func New(logger zerolog.Logger) *Bus {
	return NewWithClock(logger, systemClock{})
}

// NewWithClock creates an empty bus with an injected time source.
func NewWithClock(logger zerolog.Logger, clock Clock) *Bus {
	return &Bus{
		subs:   make(map[Type][]subscription),
		logger: logger.With().Str("com", "eventbus").Logger(),
		clock:  clock,
	}
}

// Subscribe registers a handler for an event type and returns a handle
// for Unsubscribe. A handler may be registered for multiple types
// independently; each registration gets its own handle.
func (b *Bus) Subscribe(t Type, h Handler) uuid.UUID {
	id := uuid.New()

	b.mu.Lock()
	b.subs[t] = append(b.subs[t], subscription{id: id, handler: h})
	b.mu.Unlock()

	b.logger.Debug().Stringer("event_type", t).Str("sub_id", id.String()).Msg("handler subscribed")
	return id
}

// Unsubscribe removes a previously registered handler. Removing an
// unknown handle is a no-op.
func (b *Bus) Unsubscribe(t Type, id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[t]
	for i, s := range subs {
		if s.id == id {
			b.subs[t] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Publish delivers the event to every handler currently registered for
// its type. Each handler runs in its own goroutine so a slow handler
// cannot delay the others; Publish waits for all of them and returns
// their errors joined. A panicking handler is recovered and reported
// as an error.
func (b *Bus) Publish(evt Event) error {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs[evt.EventType()]))
	copy(subs, b.subs[evt.EventType()])
	b.mu.RUnlock()

	if len(subs) == 0 {
		return nil
	}

	errs := make([]error, len(subs))
	var wg sync.WaitGroup
	for i, s := range subs {
		wg.Add(1)
		go func(i int, s subscription) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("handler %s panicked: %v", s.id, r)
				}
			}()
			errs[i] = s.handler(evt)
		}(i, s)
	}
	wg.Wait()

	return errors.Join(errs...)
}

// WaitFor blocks until the first event of the given type is published
// or the timeout elapses. It returns true if the event arrived. The
// temporary subscription is always removed before returning.
func (b *Bus) WaitFor(ctx context.Context, t Type, timeout time.Duration) bool {
	ch := make(chan struct{}, 1)
	id := b.Subscribe(t, func(Event) error {
		select {
		case ch <- struct{}{}:
		default:
		}
		return nil
	})
	defer b.Unsubscribe(t, id)

	select {
	case <-ch:
		return true
	case <-b.clock.After(timeout):
		return false
	case <-ctx.Done():
		return false
	}
}

// SubscriberCount returns the number of handlers registered for a type.
func (b *Bus) SubscriberCount(t Type) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[t])
}
