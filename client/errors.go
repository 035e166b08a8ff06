package client

import "errors"

var (
	// ErrNetwork marks a failure in the network layer: a failed health
	// pre-check, a broken socket write, or a dropped connection.
	ErrNetwork = errors.New("client: network error")

	// ErrConnectionFailed is returned when the transport dial fails.
	ErrConnectionFailed = errors.New("client: connection failed")

	// ErrConnectionTimeout is returned when the dial or the login
	// handshake exceeds its deadline.
	ErrConnectionTimeout = errors.New("client: connection timed out")

	// ErrNotConnected is returned for operations that need an
	// established connection.
	ErrNotConnected = errors.New("client: not connected")

	// ErrAuthFailed is returned when the server rejects the login.
	ErrAuthFailed = errors.New("client: authentication failed")

	// ErrQueueFull is returned by Submit when the pending queue is at
	// capacity.
	ErrQueueFull = errors.New("client: command queue full")

	// ErrTimeout is returned when a command receives no response within
	// the command timeout.
	ErrTimeout = errors.New("client: command timed out")

	// ErrCancelled is returned when a command is cancelled by its
	// context or by dispatcher shutdown.
	ErrCancelled = errors.New("client: command cancelled")

	// ErrMaxRetriesExceeded is returned when a command exhausts its
	// retry budget on transient failures.
	ErrMaxRetriesExceeded = errors.New("client: max retries exceeded")

	// ErrServerError is returned when the server answers a command with
	// an error frame.
	ErrServerError = errors.New("client: server error")
)

// transient reports whether a failure is worth retrying. Validation and
// server rejections are final; network faults and timeouts are not.
func transient(err error) bool {
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrNetwork) ||
		errors.Is(err, ErrNotConnected)
}
