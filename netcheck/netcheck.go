// Package netcheck runs the pre-flight network health probes that gate
// connection attempts.
package netcheck

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
)

// Health is the aggregated verdict of a probe run.
type Health int

const (
	HealthExcellent Health = iota
	HealthGood
	HealthFair
	HealthPoor
)

// String returns a human-readable name for the verdict.
func (h Health) String() string {
	switch h {
	case HealthExcellent:
		return "excellent"
	case HealthGood:
		return "good"
	case HealthFair:
		return "fair"
	case HealthPoor:
		return "poor"
	default:
		return "unknown"
	}
}

// Report is the outcome of one health check run.
type Report struct {
	Overall    Health
	Issues     []string
	Latency    time.Duration
	PacketLoss float64
	Resolved   int
	Interfaces int
}

// Aggregation thresholds.
const (
	goodIssueLimit = 2
	fairIssueLimit = 4

	DefaultLatencyThreshold = 200 * time.Millisecond
	DefaultLossThreshold    = 0.25
	DefaultProbeCount       = 4
	DefaultProbeTimeout     = 2 * time.Second
)

// Checker probes DNS resolution, interface availability, dial latency
// and packet loss for a target address. The individual probes are
// injectable so tests can drive the aggregation deterministically.
type Checker struct {
	LatencyThreshold time.Duration
	LossThreshold    float64
	ProbeCount       int
	ProbeTimeout     time.Duration

	resolve    func(ctx context.Context, host string) ([]string, error)
	interfaces func() (int, error)
	dial       func(ctx context.Context, addr string) (time.Duration, error)

	logger zerolog.Logger
}

// New creates a Checker wired to the real network probes.
func New(logger zerolog.Logger) *Checker {
	c := &Checker{
		LatencyThreshold: DefaultLatencyThreshold,
		LossThreshold:    DefaultLossThreshold,
		ProbeCount:       DefaultProbeCount,
		ProbeTimeout:     DefaultProbeTimeout,
		logger:           logger.With().Str("com", "netcheck").Logger(),
	}
	c.resolve = func(ctx context.Context, host string) ([]string, error) {
		return net.DefaultResolver.LookupHost(ctx, host)
	}
	c.interfaces = upInterfaceCount
	c.dial = c.dialProbe
	return c
}

// Check runs all probes against addr (host:port) and aggregates the
// verdict. More than four detected issues means Poor.
func (c *Checker) Check(ctx context.Context, addr string) Report {
	var report Report
	issue := func(format string, args ...interface{}) {
		report.Issues = append(report.Issues, fmt.Sprintf(format, args...))
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		issue("invalid address %q: %v", addr, err)
		host = addr
	}

	addrs, err := c.resolve(ctx, host)
	switch {
	case err != nil:
		issue("dns resolution failed: %v", err)
	case len(addrs) == 0:
		issue("dns resolution returned no addresses")
	default:
		report.Resolved = len(addrs)
	}

	ifaces, err := c.interfaces()
	switch {
	case err != nil:
		issue("interface enumeration failed: %v", err)
	case ifaces == 0:
		issue("no network interface is up")
	default:
		report.Interfaces = ifaces
	}

	report.Latency, report.PacketLoss = c.probeLatency(ctx, addr)
	switch {
	case report.PacketLoss >= 1:
		issue("target unreachable: all %d probes failed", c.ProbeCount)
	case report.PacketLoss > c.LossThreshold:
		issue("packet loss %.0f%% exceeds %.0f%%", report.PacketLoss*100, c.LossThreshold*100)
	}
	if report.PacketLoss < 1 && report.Latency > c.LatencyThreshold {
		issue("latency %s exceeds %s", report.Latency, c.LatencyThreshold)
	}

	report.Overall = classify(len(report.Issues))

	c.logger.Debug().
		Str("addr", addr).
		Stringer("overall", report.Overall).
		Strs("issues", report.Issues).
		Dur("latency", report.Latency).
		Float64("packet_loss", report.PacketLoss).
		Msg("health check complete")

	return report
}

func classify(issues int) Health {
	switch {
	case issues == 0:
		return HealthExcellent
	case issues <= goodIssueLimit:
		return HealthGood
	case issues <= fairIssueLimit:
		return HealthFair
	default:
		return HealthPoor
	}
}

// probeLatency dials the target ProbeCount times and reports the mean
// latency of the successful attempts and the failure ratio.
func (c *Checker) probeLatency(ctx context.Context, addr string) (time.Duration, float64) {
	if c.ProbeCount <= 0 {
		return 0, 0
	}

	var total time.Duration
	failures := 0
	for i := 0; i < c.ProbeCount; i++ {
		elapsed, err := c.dial(ctx, addr)
		if err != nil {
			failures++
			continue
		}
		total += elapsed
	}

	successes := c.ProbeCount - failures
	loss := float64(failures) / float64(c.ProbeCount)
	if successes == 0 {
		return 0, loss
	}
	return total / time.Duration(successes), loss
}

func (c *Checker) dialProbe(ctx context.Context, addr string) (time.Duration, error) {
	dialer := net.Dialer{Timeout: c.ProbeTimeout}
	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return 0, err
	}
	elapsed := time.Since(start)
	conn.Close()
	return elapsed, nil
}

func upInterfaceCount() (int, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return 0, err
	}
	count := 0
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagLoopback == 0 {
			count++
		}
	}
	return count, nil
}
