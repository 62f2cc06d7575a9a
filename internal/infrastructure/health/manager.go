// Package health aggregates channel health checks for the xAPI client
package health

import (
	"fmt"
	"slices"
	"sync"

	"xapi/internal/core"
	"xapi/pkg/logging"
)

// HealthManager aggregates health status from the command and event channels
type HealthManager struct {
	logger core.ILogger
	mu     sync.RWMutex
	checks map[string]func() error
	last   map[string]bool
}

// NewHealthManager creates a new health manager
func NewHealthManager(logger core.ILogger) *HealthManager {
	return &HealthManager{
		logger: logging.OrGlobal(logger).WithField("component", "health_manager"),
		checks: make(map[string]func() error),
		last:   make(map[string]bool),
	}
}

// Register adds or replaces the health check for a component
func (hm *HealthManager) Register(component string, check func() error) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checks[component] = check
	delete(hm.last, component)
}

// Components returns the registered component names in order
func (hm *HealthManager) Components() []string {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	names := make([]string, 0, len(hm.checks))
	for name := range hm.checks {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Check runs the check of a single component
func (hm *HealthManager) Check(component string) error {
	hm.mu.RLock()
	check, ok := hm.checks[component]
	hm.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown component %q", component)
	}
	err := check()
	hm.record(component, err)
	return err
}

// GetStatus returns the current status of all registered components
func (hm *HealthManager) GetStatus() map[string]string {
	status := make(map[string]string)
	for _, component := range hm.Components() {
		if err := hm.Check(component); err != nil {
			status[component] = "Unhealthy: " + err.Error()
		} else {
			status[component] = "Healthy"
		}
	}
	return status
}

// IsHealthy returns true if all registered components are healthy
func (hm *HealthManager) IsHealthy() bool {
	healthy := true
	for _, component := range hm.Components() {
		if err := hm.Check(component); err != nil {
			healthy = false
		}
	}
	return healthy
}

// record logs transitions between healthy and unhealthy
func (hm *HealthManager) record(component string, err error) {
	ok := err == nil
	hm.mu.Lock()
	prev, seen := hm.last[component]
	hm.last[component] = ok
	hm.mu.Unlock()

	if seen && prev == ok {
		return
	}
	if ok {
		hm.logger.Info("Component healthy", "name", component)
	} else {
		hm.logger.Warn("Component unhealthy", "name", component, "error", err)
	}
}
