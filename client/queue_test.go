package client

import (
	"container/heap"
	"testing"
)

func pushCmd(q *commandQueue, text string, p Priority, order uint64) {
	heap.Push(q, &command{text: text, priority: p, order: order})
}

func popCmd(q *commandQueue) *command {
	return heap.Pop(q).(*command)
}

func TestQueuePriorityOrder(t *testing.T) {
	var q commandQueue
	heap.Init(&q)

	pushCmd(&q, "low", PriorityLow, 1)
	pushCmd(&q, "critical", PriorityCritical, 2)
	pushCmd(&q, "normal", PriorityNormal, 3)

	want := []string{"critical", "normal", "low"}
	for _, expected := range want {
		got := popCmd(&q).text
		if got != expected {
			t.Fatalf("expected %q, got %q", expected, got)
		}
	}
}

func TestQueueFIFOWithinPriority(t *testing.T) {
	var q commandQueue
	heap.Init(&q)

	pushCmd(&q, "first", PriorityNormal, 1)
	pushCmd(&q, "second", PriorityNormal, 2)
	pushCmd(&q, "third", PriorityNormal, 3)

	for _, expected := range []string{"first", "second", "third"} {
		got := popCmd(&q).text
		if got != expected {
			t.Fatalf("expected %q, got %q", expected, got)
		}
	}
}

func TestQueueHigherPriorityPreemptsQueued(t *testing.T) {
	var q commandQueue
	heap.Init(&q)

	pushCmd(&q, "early-normal", PriorityNormal, 1)
	pushCmd(&q, "late-high", PriorityHigh, 2)

	if got := popCmd(&q).text; got != "late-high" {
		t.Fatalf("expected high-priority command first, got %q", got)
	}
	if got := popCmd(&q).text; got != "early-normal" {
		t.Fatalf("expected normal command second, got %q", got)
	}
}

func TestCommandCompleteOnce(t *testing.T) {
	cmd := &command{done: make(chan result, 1)}
	cmd.complete([]byte("first"), nil)
	cmd.complete([]byte("second"), nil)

	res := <-cmd.done
	if string(res.payload) != "first" {
		t.Fatalf("expected first completion to win, got %q", res.payload)
	}
	select {
	case extra := <-cmd.done:
		t.Fatalf("unexpected second completion: %+v", extra)
	default:
	}
}

func TestParsePriority(t *testing.T) {
	cases := map[string]Priority{
		"low":      PriorityLow,
		"normal":   PriorityNormal,
		"NORMAL":   PriorityNormal,
		"":         PriorityNormal,
		"high":     PriorityHigh,
		"critical": PriorityCritical,
	}
	for in, want := range cases {
		got, err := ParsePriority(in)
		if err != nil {
			t.Errorf("ParsePriority(%q) failed: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParsePriority(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParsePriority("urgent"); err == nil {
		t.Error("expected error for unknown priority name")
	}
}

func TestPriorityString(t *testing.T) {
	cases := map[Priority]string{
		PriorityLow:      "low",
		PriorityNormal:   "normal",
		PriorityHigh:     "high",
		PriorityCritical: "critical",
		Priority(42):     "unknown",
	}
	for p, want := range cases {
		if got := p.String(); got != want {
			t.Errorf("Priority(%d).String() = %q, want %q", p, got, want)
		}
	}
}
