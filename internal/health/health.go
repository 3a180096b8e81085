// Package health runs periodic named checks and serves liveness/readiness
// endpoints for the admin HTTP server.
package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CheckStatus represents the result of a health check
type CheckStatus int

const (
	StatusHealthy CheckStatus = iota
	StatusDegraded
	StatusUnhealthy
	StatusUnknown
)

func (s CheckStatus) String() string {
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

// CheckResult contains the result of a health check
type CheckResult struct {
	Status    CheckStatus `json:"-"`
	StatusStr string      `json:"status"`
	Message   string      `json:"message,omitempty"`
	Error     string      `json:"error,omitempty"`
	Duration  string      `json:"duration"`
	Timestamp time.Time   `json:"timestamp"`
	Component string      `json:"component"`
	Critical  bool        `json:"critical"`
}

// Checker defines the interface for health checks
type Checker interface {
	// Name returns the unique name of this health check
	Name() string
	// Check performs the health check and returns the result
	Check(ctx context.Context) CheckResult
	// IsCritical reports whether failure should mark the service unhealthy
	IsCritical() bool
}

// Manager runs registered checkers on an interval and caches their results.
type Manager struct {
	logger   *zap.Logger
	interval time.Duration

	mu       sync.RWMutex
	checkers map[string]Checker
	results  map[string]CheckResult
	started  bool
	stopCh   chan struct{}
}

// NewManager creates a manager checking every 15 seconds.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		logger:   logger,
		interval: 15 * time.Second,
		checkers: make(map[string]Checker),
		results:  make(map[string]CheckResult),
		stopCh:   make(chan struct{}),
	}
}

// Register adds a checker. Re-registering a name replaces the checker.
func (m *Manager) Register(c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[c.Name()] = c
}

// Start begins background checking; the first round runs immediately.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	go func() {
		m.runChecks(ctx)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.runChecks(ctx)
			}
		}
	}()
}

// Stop halts background checking.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return
	}
	m.started = false
	close(m.stopCh)
}

// Results returns a copy of the latest check results.
func (m *Manager) Results() map[string]CheckResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]CheckResult, len(m.results))
	for k, v := range m.results {
		out[k] = v
	}
	return out
}

// IsReady reports whether all critical checks pass.
func (m *Manager) IsReady() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for name, c := range m.checkers {
		if !c.IsCritical() {
			continue
		}
		res, ok := m.results[name]
		if !ok || res.Status == StatusUnhealthy {
			return false
		}
	}
	return true
}

func (m *Manager) runChecks(ctx context.Context) {
	m.mu.RLock()
	checkers := make([]Checker, 0, len(m.checkers))
	for _, c := range m.checkers {
		checkers = append(checkers, c)
	}
	m.mu.RUnlock()

	for _, c := range checkers {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		start := time.Now()
		res := c.Check(checkCtx)
		cancel()
		res.Component = c.Name()
		res.Critical = c.IsCritical()
		res.Duration = time.Since(start).String()
		res.Timestamp = time.Now()
		res.StatusStr = res.Status.String()

		m.mu.Lock()
		m.results[c.Name()] = res
		m.mu.Unlock()

		if res.Status == StatusUnhealthy {
			m.logger.Warn("Health check failed",
				zap.String("component", c.Name()),
				zap.String("error", res.Error),
			)
		}
	}
}
