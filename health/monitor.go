package health

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"
)

// Probe checks one dependency and returns nil when it is usable.
type Probe func(ctx context.Context) error

type probe struct {
	name     string
	check    Probe
	optional bool
}

// Monitor runs named probes in a thread-safe manner.
type Monitor struct {
	mu      sync.RWMutex
	name    string
	timeout time.Duration
	probes  []probe
}

// NewMonitor creates a monitor reporting under the given system name.
func NewMonitor(name string) *Monitor {
	return &Monitor{name: name, timeout: 2 * time.Second}
}

// SetTimeout bounds each probe run.
func (m *Monitor) SetTimeout(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = d
}

// Require adds a probe whose failure makes the server unhealthy. A probe
// with the same name is replaced.
func (m *Monitor) Require(name string, check Probe) {
	m.add(probe{name: name, check: check})
}

// Optional adds a probe whose failure only degrades the server.
func (m *Monitor) Optional(name string, check Probe) {
	m.add(probe{name: name, check: check, optional: true})
}

func (m *Monitor) add(p probe) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes = slices.DeleteFunc(m.probes, func(q probe) bool { return q.name == p.name })
	m.probes = append(m.probes, p)
}

// Remove drops a probe.
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes = slices.DeleteFunc(m.probes, func(q probe) bool { return q.name == name })
}

// Names returns the probe names in registration order.
func (m *Monitor) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, len(m.probes))
	for i, p := range m.probes {
		names[i] = p.name
	}
	return names
}

// Check runs every probe in order and aggregates the results.
func (m *Monitor) Check(ctx context.Context) Status {
	m.mu.RLock()
	probes := slices.Clone(m.probes)
	timeout := m.timeout
	m.mu.RUnlock()

	subs := make([]Status, 0, len(probes))
	for _, p := range probes {
		subs = append(subs, run(ctx, p, timeout))
	}
	return Aggregate(m.name, subs)
}

func run(ctx context.Context, p probe, timeout time.Duration) Status {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	err := p.check(ctx)
	latency := time.Since(start)

	var s Status
	switch {
	case err == nil:
		s = newStatus(p.name, StatusHealthy, "ok")
	case p.optional:
		s = newStatus(p.name, StatusDegraded, sanitizeErrorMessage(err.Error()))
	default:
		s = newStatus(p.name, StatusUnhealthy, sanitizeErrorMessage(err.Error()))
	}
	s.Latency = latency
	return s
}

// Handler serves Check as JSON. Unhealthy answers 503; healthy and degraded
// answer 200.
func (m *Monitor) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := m.Check(r.Context())
		code := http.StatusOK
		if status.IsUnhealthy() {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	})
}
