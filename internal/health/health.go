// Package health runs named environment probes and keeps the latest result
// of each.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shortrun/shortrun/internal/logging"
)

var log = logging.L("health")

// Status represents the health status of a component.
type Status string

const (
	Healthy   Status = "healthy"
	Degraded  Status = "degraded"
	Unhealthy Status = "unhealthy"
)

// Check stores the latest result for a named component.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Probe inspects one component.
type Probe func(ctx context.Context) (Status, string)

// Monitor tracks checks in the order they were first recorded.
type Monitor struct {
	mu     sync.RWMutex
	checks map[string]Check
	order  []string
}

func NewMonitor() *Monitor {
	return &Monitor{checks: make(map[string]Check)}
}

// Update records the status for a named component.
func (m *Monitor) Update(name string, status Status, message string) {
	m.record(Check{Name: name, Status: status, Message: message})
}

// Run times probe and records its result. A panicking probe is recorded as
// unhealthy.
func (m *Monitor) Run(ctx context.Context, name string, probe Probe) Check {
	start := time.Now()
	status, message := func() (s Status, msg string) {
		defer func() {
			if r := recover(); r != nil {
				s, msg = Unhealthy, fmt.Sprintf("probe panicked: %v", r)
			}
		}()
		return probe(ctx)
	}()
	c := Check{
		Name:       name,
		Status:     status,
		Message:    message,
		DurationMs: time.Since(start).Milliseconds(),
	}
	m.record(c)
	return c
}

func (m *Monitor) record(c Check) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, seen := m.checks[c.Name]; !seen {
		m.order = append(m.order, c.Name)
	}
	m.checks[c.Name] = c

	if c.Status != Healthy {
		log.Warn("health check degraded", logging.KeyComponent, c.Name, "status", string(c.Status), "message", c.Message)
	}
}

// Get returns the check for a named component.
func (m *Monitor) Get(name string) (Check, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.checks[name]
	return c, ok
}

// Overall returns the worst status across all checks, or Healthy when there
// are none.
func (m *Monitor) Overall() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	worst := Healthy
	for _, c := range m.checks {
		if worse(c.Status, worst) {
			worst = c.Status
		}
	}
	return worst
}

// All returns a snapshot of every check in recording order.
func (m *Monitor) All() []Check {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Check, 0, len(m.order))
	for _, name := range m.order {
		result = append(result, m.checks[name])
	}
	return result
}

// worse returns true if a is worse than b.
func worse(a, b Status) bool {
	return statusRank(a) > statusRank(b)
}

func statusRank(s Status) int {
	switch s {
	case Degraded:
		return 1
	case Unhealthy:
		return 2
	default:
		return 0
	}
}
