// Package health implements the Health Monitor: periodic host-metrics
// polling plus named component status hooks, aggregated into a single
// overall status. Grounded on mercator-hq-jupiter's
// pkg/telemetry/health.Checker (named CheckFunc registration, concurrent
// per-component execution, worst-status aggregation), generalized from its
// liveness/readiness split into the spec's single Status snapshot and from
// binary ok/unhealthy results into the spec's three-state
// healthy/degraded/unhealthy scale (SPEC_FULL.md §4.9).
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// Status is one of the three overall/component health levels, ordered so
// that a numerically larger value is worse.
type Status int

const (
	StatusHealthy Status = iota
	StatusDegraded
	StatusUnhealthy
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

func worstOf(a, b Status) Status {
	if b > a {
		return b
	}
	return a
}

// CheckFunc reports a single component's current status, optionally with a
// human-readable detail message.
type CheckFunc func() (Status, string)

// HostMetrics is the most recently polled set of host gauges.
type HostMetrics struct {
	CPUPercent    float64
	MemoryPercent float64
	DiskPercent   float64
	PolledAt      time.Time
}

// ComponentReport is one named component's current status.
type ComponentReport struct {
	Status  Status
	Message string
}

// Report is the full aggregate snapshot returned by Monitor.Check.
type Report struct {
	Status     Status
	Components map[string]ComponentReport
	Host       HostMetrics
	Timestamp  time.Time
}

// DefaultPollInterval is how often host metrics refresh when no explicit
// interval is configured (the config file's health.poll_interval).
const DefaultPollInterval = 5 * time.Second

// DiskPath is the filesystem path disk usage is sampled from.
const DiskPath = "/"

// Monitor polls host metrics on a ticker and aggregates named component
// checks on demand. Safe for concurrent use.
type Monitor struct {
	pollInterval time.Duration
	logger       *slog.Logger

	mu     sync.RWMutex
	checks map[string]CheckFunc
	host   HostMetrics

	stop chan struct{}
	done chan struct{}
}

// New builds a Monitor. It does not start polling until Start is called.
func New(pollInterval time.Duration, logger *slog.Logger) *Monitor {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		pollInterval: pollInterval,
		logger:       logger.With("component", "health.Monitor"),
		checks:       make(map[string]CheckFunc),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// RegisterCheck registers (or replaces) a named component's check, e.g.
// "policy_store", "circuit_breaker", "audit_sink". A component absent from
// the registry defaults to healthy per SPEC_FULL.md §4.9.
func (m *Monitor) RegisterCheck(name string, check CheckFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = check
}

// Start polls host metrics once immediately, then on pollInterval ticks
// until Stop is called. Blocks until the first poll completes so an
// initial Check call always has real numbers rather than zero values.
func (m *Monitor) Start(ctx context.Context) {
	m.poll()
	go m.run(ctx)
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			m.poll()
		}
	}
}

func (m *Monitor) poll() {
	host := HostMetrics{PolledAt: time.Now()}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		host.CPUPercent = pct[0]
	} else if err != nil {
		m.logger.Warn("cpu poll failed", "error", err)
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		host.MemoryPercent = vm.UsedPercent
	} else {
		m.logger.Warn("memory poll failed", "error", err)
	}

	if du, err := disk.Usage(DiskPath); err == nil {
		host.DiskPercent = du.UsedPercent
	} else {
		m.logger.Warn("disk poll failed", "error", err)
	}

	m.mu.Lock()
	m.host = host
	m.mu.Unlock()
}

// Stop halts the polling loop and waits for it to exit.
func (m *Monitor) Stop() {
	close(m.stop)
	<-m.done
}

// Check runs every registered component check and returns the aggregate
// Report. The overall Status is the worst of all component statuses; a
// Monitor with no registered checks reports healthy.
func (m *Monitor) Check() Report {
	m.mu.RLock()
	checks := make(map[string]CheckFunc, len(m.checks))
	for name, check := range m.checks {
		checks[name] = check
	}
	host := m.host
	m.mu.RUnlock()

	components := make(map[string]ComponentReport, len(checks))
	overall := StatusHealthy

	var wg sync.WaitGroup
	var resultMu sync.Mutex
	for name, check := range checks {
		wg.Add(1)
		go func(name string, check CheckFunc) {
			defer wg.Done()
			status, msg := check()
			resultMu.Lock()
			components[name] = ComponentReport{Status: status, Message: msg}
			resultMu.Unlock()
		}(name, check)
	}
	wg.Wait()

	for _, c := range components {
		overall = worstOf(overall, c.Status)
	}

	return Report{
		Status:     overall,
		Components: components,
		Host:       host,
		Timestamp:  time.Now(),
	}
}
