// Package state holds the live cycle state shared by the executor, the
// orchestration loop and the HTTP API.
package state

import (
	"fmt"
	"sync"
	"time"

	"autopilot/types"
)

// Manager holds the current phase, config and last error (thread-safe)
type Manager struct {
	mu sync.RWMutex

	phase     types.CyclePhase
	config    types.CycleConfig
	running   bool
	nextRunAt time.Time
	lastErr   error

	onPhase func(types.CyclePhase)
}

// NewManager creates a manager in the Idle phase
func NewManager(cfg types.CycleConfig) *Manager {
	return &Manager{
		phase:  types.PhaseIdle,
		config: cfg,
	}
}

// OnPhaseChange registers a hook invoked after every phase change
func (m *Manager) OnPhaseChange(fn func(types.CyclePhase)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onPhase = fn
}

// SetPhase moves to next if the cycle order allows it
func (m *Manager) SetPhase(next types.CyclePhase) error {
	m.mu.Lock()
	if !m.phase.CanAdvance(next) {
		current := m.phase
		m.mu.Unlock()
		return fmt.Errorf("illegal phase transition %s -> %s", current, next)
	}
	m.phase = next
	hook := m.onPhase
	m.mu.Unlock()

	if hook != nil {
		hook(next)
	}
	return nil
}

// Phase returns the current phase
func (m *Manager) Phase() types.CyclePhase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase
}

// SetConfig replaces the cycle config
func (m *Manager) SetConfig(cfg types.CycleConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = cfg
}

// Config returns the current cycle config
func (m *Manager) Config() types.CycleConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// TryBeginRun marks a run in progress. It returns false when a run is
// already in flight or the phase is not Idle.
func (m *Manager) TryBeginRun() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running || m.phase != types.PhaseIdle {
		return false
	}
	m.running = true
	m.lastErr = nil
	return true
}

// EndRun clears the in-flight marker
func (m *Manager) EndRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
}

// Running reports whether a cycle is executing
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// SetNextRun records when the next cycle is due; zero clears it
func (m *Manager) SetNextRun(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextRunAt = t
}

// NextRun returns when the next cycle is due, or zero
func (m *Manager) NextRun() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nextRunAt
}

// SetError records the last cycle failure
func (m *Manager) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastErr = err
}

// LastError returns the last cycle failure, if any
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// Snapshot fills the state fields of a status response
func (m *Manager) Snapshot() types.StatusResponse {
	m.mu.RLock()
	defer m.mu.RUnlock()

	resp := types.StatusResponse{
		Phase:   m.phase,
		Config:  m.config,
		Running: m.running,
	}
	if !m.nextRunAt.IsZero() {
		resp.NextRunAt = m.nextRunAt.UTC().Format(time.RFC3339)
	}
	if m.lastErr != nil {
		resp.Error = m.lastErr.Error()
	}
	return resp
}
