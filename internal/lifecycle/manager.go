package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/moolen/hearth/internal/logging"
)

// DefaultShutdownTimeout is applied per service when none is configured.
const DefaultShutdownTimeout = 30 * time.Second

// Manager starts services in dependency order and stops them in reverse.
type Manager struct {
	services        []Service
	dependencies    map[Service][]Service
	running         map[Service]bool
	started         []Service
	shutdownTimeout time.Duration
	mu              sync.RWMutex
	opMu            sync.Mutex
	logger          *logging.Logger
}

// NewManager creates a manager. A non-positive timeout selects DefaultShutdownTimeout.
func NewManager(shutdownTimeout time.Duration) *Manager {
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}
	return &Manager{
		dependencies:    make(map[Service][]Service),
		running:         make(map[Service]bool),
		shutdownTimeout: shutdownTimeout,
		logger:          logging.GetLogger("lifecycle.manager"),
	}
}

// Register adds a service. Every dependency must already be registered, which
// also rules out cycles.
func (m *Manager) Register(svc Service, dependsOn ...Service) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if svc == nil {
		return fmt.Errorf("cannot register nil service")
	}
	if svc.Name() == "" {
		return fmt.Errorf("service must have a non-empty name")
	}
	if _, dup := m.dependencies[svc]; dup {
		return fmt.Errorf("service %s is already registered", svc.Name())
	}
	for _, dep := range dependsOn {
		if dep == svc {
			return fmt.Errorf("service %s cannot depend on itself", svc.Name())
		}
		if _, ok := m.dependencies[dep]; !ok {
			return fmt.Errorf("dependency %s of %s is not registered", dep.Name(), svc.Name())
		}
	}

	m.services = append(m.services, svc)
	m.dependencies[svc] = dependsOn
	m.logger.Debug("Registered service %s with %d dependencies", svc.Name(), len(dependsOn))
	return nil
}

// Start starts every service after its dependencies. On failure the services
// already started are stopped in reverse order.
func (m *Manager) Start(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.started = nil
	for _, svc := range m.order() {
		begin := time.Now()
		if err := svc.Start(ctx); err != nil {
			m.logger.Error("Failed to start %s: %v", svc.Name(), err)
			m.rollback()
			return fmt.Errorf("start %s: %w", svc.Name(), err)
		}

		m.mu.Lock()
		m.running[svc] = true
		m.mu.Unlock()
		m.started = append(m.started, svc)
		m.logger.Info("Started %s (took %dms)", svc.Name(), time.Since(begin).Milliseconds())
	}
	return nil
}

// order returns the services with dependencies first, registration order otherwise.
func (m *Manager) order() []Service {
	visited := make(map[Service]bool, len(m.services))
	sorted := make([]Service, 0, len(m.services))

	var visit func(Service)
	visit = func(svc Service) {
		if visited[svc] {
			return
		}
		visited[svc] = true
		for _, dep := range m.dependencies[svc] {
			visit(dep)
		}
		sorted = append(sorted, svc)
	}
	for _, svc := range m.services {
		visit(svc)
	}
	return sorted
}

func (m *Manager) rollback() {
	for i := len(m.started) - 1; i >= 0; i-- {
		svc := m.started[i]
		ctx, cancel := context.WithTimeout(context.Background(), m.shutdownTimeout)
		if err := svc.Stop(ctx); err != nil {
			m.logger.Warn("Error stopping %s during rollback: %v", svc.Name(), err)
		}
		cancel()
		m.setStopped(svc)
	}
	m.started = nil
}

// Stop stops the started services in reverse start order, each with its own
// deadline. Every service is stopped even when an earlier one fails; the
// failures are joined.
func (m *Manager) Stop(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	var errs []error
	for i := len(m.started) - 1; i >= 0; i-- {
		svc := m.started[i]
		if !m.IsRunning(svc) {
			continue
		}

		begin := time.Now()
		svcCtx, cancel := context.WithTimeout(ctx, m.shutdownTimeout)
		err := svc.Stop(svcCtx)
		cancel()
		m.setStopped(svc)

		switch {
		case errors.Is(err, context.DeadlineExceeded):
			m.logger.Warn("%s exceeded its %dms shutdown timeout", svc.Name(), m.shutdownTimeout.Milliseconds())
			errs = append(errs, fmt.Errorf("stop %s: %w", svc.Name(), err))
		case err != nil:
			m.logger.Error("Error stopping %s: %v", svc.Name(), err)
			errs = append(errs, fmt.Errorf("stop %s: %w", svc.Name(), err))
		default:
			m.logger.Info("Stopped %s (took %dms)", svc.Name(), time.Since(begin).Milliseconds())
		}
	}
	m.started = nil
	return errors.Join(errs...)
}

func (m *Manager) setStopped(svc Service) {
	m.mu.Lock()
	m.running[svc] = false
	m.mu.Unlock()
}

// IsRunning reports whether svc started and has not been stopped.
func (m *Manager) IsRunning(svc Service) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running[svc]
}

// Services returns the registered services in start order.
func (m *Manager) Services() []Service {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.order()
}
