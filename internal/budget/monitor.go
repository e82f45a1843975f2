// Package budget implements the Budget Monitor (C4): threshold
// classification over a rolling monthly period, with atomic period
// rollover.
package budget

import (
	"sync"
	"time"
)

// Status is the closed set of budget classifications (spec.md §4.4).
type Status string

const (
	StatusOK       Status = "OK"
	StatusWarning  Status = "Warning"
	StatusAlert    Status = "Alert"
	StatusExceeded Status = "Exceeded"
)

// State holds configured thresholds and current spend (BudgetState in
// spec.md §3).
type State struct {
	MonthlyBudget  float64
	WarnThreshold  float64
	AlertThreshold float64
	PeriodSpend    float64
	PeriodStart    time.Time
}

// Classify returns the status for periodSpend against budget, per the
// thresholds in spec.md §4.4. A non-positive budget returns OK rather
// than failing the call, preserving availability when budgets are
// unconfigured; the caller should still surface a warning in that case.
func Classify(periodSpend, budget, warn, alert float64) Status {
	if budget <= 0 {
		return StatusOK
	}
	ratio := periodSpend / budget
	switch {
	case ratio < warn:
		return StatusOK
	case ratio < alert:
		return StatusWarning
	case ratio < 1.0:
		return StatusAlert
	default:
		return StatusExceeded
	}
}

// Remaining returns the unspent portion of budget, floored at zero.
func Remaining(periodSpend, budget float64) float64 {
	r := budget - periodSpend
	if r < 0 {
		return 0
	}
	return r
}

// Monitor is the thread-safe, owning holder of BudgetState. Only the
// Monitor mutates period state; other components read via Snapshot.
type Monitor struct {
	mu    sync.Mutex
	state State
	// periodLength is the duration of one budget period; monthly
	// accounting approximates "a month" as this fixed duration so Tick
	// can decide rollover without calendar arithmetic.
	periodLength time.Duration
	now          func() time.Time
}

// Config configures a new Monitor.
type Config struct {
	MonthlyBudget  float64
	WarnThreshold  float64
	AlertThreshold float64
	PeriodLength   time.Duration
	// Now overrides the clock; nil uses time.Now. Exposed for tests.
	Now func() time.Time
}

const defaultPeriodLength = 30 * 24 * time.Hour

// New creates a Monitor with the current period starting now.
func New(cfg Config) *Monitor {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	periodLength := cfg.PeriodLength
	if periodLength <= 0 {
		periodLength = defaultPeriodLength
	}
	return &Monitor{
		state: State{
			MonthlyBudget:  cfg.MonthlyBudget,
			WarnThreshold:  cfg.WarnThreshold,
			AlertThreshold: cfg.AlertThreshold,
			PeriodStart:    now(),
		},
		periodLength: periodLength,
		now:          now,
	}
}

// Observe adds cost to the current period's spend.
func (m *Monitor) Observe(cost float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.PeriodSpend += cost
}

// Tick advances the current period if now has crossed a period
// boundary, atomically resetting PeriodSpend. It is idempotent and
// safe to call from any component.
func (m *Monitor) Tick(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if now.Sub(m.state.PeriodStart) >= m.periodLength {
		m.state.PeriodStart = now
		m.state.PeriodSpend = 0
	}
}

// Snapshot returns the current BudgetState.
func (m *Monitor) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Classify returns the current status.
func (m *Monitor) Classify() Status {
	s := m.Snapshot()
	return Classify(s.PeriodSpend, s.MonthlyBudget, s.WarnThreshold, s.AlertThreshold)
}

// Remaining returns the unspent portion of the current period's budget.
func (m *Monitor) Remaining() float64 {
	s := m.Snapshot()
	return Remaining(s.PeriodSpend, s.MonthlyBudget)
}
