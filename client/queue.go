package client

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Priority orders commands for dispatch. Higher values dequeue first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// String returns a human-readable name for the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParsePriority maps a priority name to its value. An empty string
// defaults to normal.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(s) {
	case "low":
		return PriorityLow, nil
	case "", "normal":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	case "critical":
		return PriorityCritical, nil
	default:
		return 0, fmt.Errorf("unknown priority %q", s)
	}
}

// result is the single completion value of a command.
type result struct {
	payload []byte
	err     error
}

// command is one submitted command tracked from enqueue to completion.
// The done channel is the command's future: completed exactly once via
// complete, read exactly once by the submitter.
type command struct {
	seq        uint32
	text       string
	priority   Priority
	enqueuedAt time.Time
	order      uint64
	retryCount int

	ctx  context.Context
	resp chan result // correlated response from the read loop
	done chan result // final completion delivered to the submitter

	once sync.Once
}

// complete resolves the command's future. Safe to call more than once;
// only the first call wins.
func (c *command) complete(payload []byte, err error) {
	c.once.Do(func() {
		c.done <- result{payload: payload, err: err}
	})
}

// commandQueue is a max-heap over (priority, arrival order): higher
// priority first, FIFO within a priority level. Implements
// container/heap.Interface; callers go through the heap package.
type commandQueue []*command

func (q commandQueue) Len() int { return len(q) }

func (q commandQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].order < q[j].order
}

func (q commandQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *commandQueue) Push(x interface{}) {
	*q = append(*q, x.(*command))
}

func (q *commandQueue) Pop() interface{} {
	old := *q
	n := len(old)
	cmd := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return cmd
}
