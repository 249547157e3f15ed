// Package health gates the UI on backend liveness.
package health

import (
	"context"
	"sync"

	"github.com/zhouzirui/z-tavern/chatsync/internal/backend"
	"github.com/zhouzirui/z-tavern/chatsync/internal/logger"
	"github.com/zhouzirui/z-tavern/chatsync/internal/service/status"
)

// State is the tri-state liveness flag.
type State int

const (
	Unknown State = iota
	OK
	Failed
)

func (s State) String() string {
	switch s {
	case OK:
		return "ok"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result of a single probe. Reason is empty when Ready.
type Result struct {
	Ready  bool
	Reason string
}

// Prober is the subset of the backend client the monitor needs.
type Prober interface {
	Health(ctx context.Context) error
}

// Monitor probes the backend on demand. It never retries by itself.
type Monitor struct {
	prober Prober
	status *status.Line

	mu    sync.RWMutex
	state State
}

// NewMonitor returns a monitor in the Unknown state.
func NewMonitor(prober Prober, line *status.Line) *Monitor {
	return &Monitor{prober: prober, status: line}
}

// Check runs one liveness probe. Failures are folded into the result.
func (m *Monitor) Check(ctx context.Context) Result {
	m.status.Set("Checking health...")

	if err := m.prober.Health(ctx); err != nil {
		reason := backend.StatusMessage(err, "Health check failed")
		logger.Warn("backend offline", "reason", reason)
		m.setState(Failed)
		m.status.Set(reason)
		return Result{Reason: reason}
	}

	m.setState(OK)
	m.status.Set(status.Ready)
	return Result{Ready: true}
}

// State returns the last observed liveness.
func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Monitor) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}
