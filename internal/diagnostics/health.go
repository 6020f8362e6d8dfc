// Package diagnostics runs periodic self-checks, escalates repeated
// failures, and serves the admin HTTP surface: health, metrics and a live
// execution feed.
package diagnostics

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/watzon/gearbox/internal/config"
)

// Check is one health probe. Check returns nil when healthy.
type Check interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckFunc adapts a function to the Check interface.
type CheckFunc struct {
	CheckName string
	Fn        func(ctx context.Context) error
}

func (c CheckFunc) Name() string                    { return c.CheckName }
func (c CheckFunc) Check(ctx context.Context) error { return c.Fn(ctx) }

// Alerter receives an escalation when a check fails enough times in a row.
type Alerter interface {
	Alert(check string, consecutive int, err error)
}

// Result is the latest outcome of one check.
type Result struct {
	Name        string    `json:"name"`
	Healthy     bool      `json:"healthy"`
	Error       string    `json:"error,omitempty"`
	Consecutive int       `json:"consecutive_failures,omitempty"`
	CheckedAt   time.Time `json:"checked_at"`
}

// Monitor runs the registered checks on an interval and tracks consecutive
// failures per check. Crossing the configured threshold raises one alert;
// the counter resets on the next success.
type Monitor struct {
	cfg     *config.DiagnosticsConfig
	alerter Alerter

	mu       sync.RWMutex
	checks   []Check
	results  map[string]*Result
	failures map[string]int
	alerted  map[string]bool

	done chan struct{}
	wg   sync.WaitGroup
}

// NewMonitor builds a monitor with no checks registered.
func NewMonitor(cfg *config.DiagnosticsConfig) *Monitor {
	return &Monitor{
		cfg:      cfg,
		results:  make(map[string]*Result),
		failures: make(map[string]int),
		alerted:  make(map[string]bool),
		done:     make(chan struct{}),
	}
}

// Register adds a check. Checks registered after Start are picked up on the
// next tick.
func (m *Monitor) Register(check Check) {
	m.mu.Lock()
	m.checks = append(m.checks, check)
	m.mu.Unlock()
}

// SetAlerter installs the escalation sink.
func (m *Monitor) SetAlerter(a Alerter) {
	m.mu.Lock()
	m.alerter = a
	m.mu.Unlock()
}

// Start begins the periodic check loop. An immediate first pass runs before
// the ticker takes over.
func (m *Monitor) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		m.runAll()
		ticker := time.NewTicker(m.cfg.CheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.runAll()
			case <-m.done:
				return
			}
		}
	}()
}

// Stop halts the check loop.
func (m *Monitor) Stop() {
	close(m.done)
	m.wg.Wait()
}

// Healthy reports whether every check's latest result passed.
func (m *Monitor) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.results {
		if !r.Healthy {
			return false
		}
	}
	return true
}

// Results returns a copy of the latest result per check.
func (m *Monitor) Results() []Result {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Result, 0, len(m.results))
	for _, check := range m.checks {
		if r, ok := m.results[check.Name()]; ok {
			out = append(out, *r)
		}
	}
	return out
}

func (m *Monitor) runAll() {
	m.mu.RLock()
	checks := make([]Check, len(m.checks))
	copy(checks, m.checks)
	m.mu.RUnlock()

	for _, check := range checks {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := check.Check(ctx)
		cancel()
		m.record(check.Name(), err)
	}
}

func (m *Monitor) record(name string, err error) {
	m.mu.Lock()

	result := &Result{Name: name, Healthy: err == nil, CheckedAt: time.Now()}
	if err == nil {
		m.failures[name] = 0
		m.alerted[name] = false
	} else {
		m.failures[name]++
		result.Error = err.Error()
		result.Consecutive = m.failures[name]
	}
	m.results[name] = result

	var escalate bool
	if err != nil && m.failures[name] >= m.cfg.AlertThreshold && !m.alerted[name] {
		m.alerted[name] = true
		escalate = true
	}
	consecutive := m.failures[name]
	alerter := m.alerter
	m.mu.Unlock()

	if err != nil {
		log.Warn().Err(err).Str("check", name).Int("consecutive", consecutive).Msg("health check failed")
	}
	if escalate && alerter != nil {
		alerter.Alert(name, consecutive, err)
	}
}
