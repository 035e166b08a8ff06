package config

import (
	"time"

	"github.com/google/uuid"
)

// Default timeout and sizing values
const (
	// DefaultPingInterval is the default interval between keepalive pings
	DefaultPingInterval = 30 * time.Second

	// DefaultCommandTimeout is the time a dispatched command may await its response
	DefaultCommandTimeout = 30 * time.Second

	// DefaultQueueCapacity caps the number of commands waiting for dispatch
	DefaultQueueCapacity = 1000

	// DefaultMaxInflight caps commands simultaneously awaiting a response
	DefaultMaxInflight = 5

	// DefaultMaxRetries is the retry budget for transient command failures
	DefaultMaxRetries = 3

	// DefaultInboundFrameRate limits inbound frames per second on the read loop
	DefaultInboundFrameRate = 200

	// DefaultInboundFrameBurst is the burst allowance of the inbound limiter
	DefaultInboundFrameBurst = 50
)

// GenerateClientID generates a new UUID for use as a client identifier.
func GenerateClientID() string {
	return uuid.New().String()
}
