package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/small-frappuccino/bruhbot/pkg/errutil"
	"github.com/small-frappuccino/bruhbot/pkg/log"
)

// ServiceState represents the current state of a service
type ServiceState string

const (
	StateUninitialized ServiceState = "uninitialized"
	StateInitializing  ServiceState = "initializing"
	StateRunning       ServiceState = "running"
	StateStopping      ServiceState = "stopping"
	StateStopped       ServiceState = "stopped"
	StateError         ServiceState = "error"
)

// ServicePriority determines startup order (higher number starts first, stops last)
type ServicePriority int

const (
	PriorityLow    ServicePriority = 1
	PriorityNormal ServicePriority = 5
	PriorityHigh   ServicePriority = 10
)

// Service defines the interface that all background services implement
type Service interface {
	// Name returns the unique name of the service
	Name() string

	// Priority returns the startup/shutdown priority
	Priority() ServicePriority

	// Dependencies returns a list of service names this service depends on
	Dependencies() []string

	// Start initializes and starts the service
	Start(ctx context.Context) error

	// Stop gracefully stops the service
	Stop(ctx context.Context) error

	// IsRunning returns true if the service is currently running
	IsRunning() bool
}

// ServiceInfo holds metadata about a registered service
type ServiceInfo struct {
	Service       Service
	State         ServiceState
	LastStateTime time.Time
	LastError     error
	order         int
}

// ServiceManager coordinates the lifecycle of the bot's background services
// (task router, message reloader, join sweeper, gateway session).
type ServiceManager struct {
	services map[string]*ServiceInfo
	mu       sync.RWMutex

	shutdownTimeout time.Duration
}

// NewServiceManager creates a new service manager
func NewServiceManager() *ServiceManager {
	return &ServiceManager{
		services:        make(map[string]*ServiceInfo),
		shutdownTimeout: 30 * time.Second,
	}
}

// Register adds a service to the manager
func (sm *ServiceManager) Register(service Service) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	name := service.Name()
	if _, exists := sm.services[name]; exists {
		return fmt.Errorf("service '%s' is already registered", name)
	}
	sm.services[name] = &ServiceInfo{
		Service:       service,
		State:         StateUninitialized,
		LastStateTime: time.Now(),
		order:         len(sm.services),
	}

	log.ApplicationLogger().Debug("Service registered",
		"service", name,
		"priority", int(service.Priority()),
		"dependencies", service.Dependencies(),
	)
	return nil
}

// StartAll starts every service in dependency order. If any service fails,
// the ones already started are stopped again and the error is returned.
func (sm *ServiceManager) StartAll(ctx context.Context) error {
	order, err := sm.calculateStartOrder()
	if err != nil {
		return fmt.Errorf("failed to calculate start order: %w", err)
	}

	for _, name := range order {
		if err := sm.startService(ctx, name); err != nil {
			_ = sm.StopAll()
			return fmt.Errorf("failed to start service '%s': %w", name, err)
		}
	}

	log.ApplicationLogger().Info("All services started", "services_count", len(order))
	return nil
}

// StopAll stops running services in reverse start order.
func (sm *ServiceManager) StopAll() error {
	order, err := sm.calculateStartOrder()
	if err != nil {
		return fmt.Errorf("failed to calculate stop order: %w", err)
	}
	slices.Reverse(order)

	ctx, cancel := context.WithTimeout(context.Background(), sm.shutdownTimeout)
	defer cancel()

	var errs []error
	for _, name := range order {
		if err := sm.stopService(ctx, name); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop service '%s': %w", name, err))
		}
	}
	if len(errs) > 0 {
		err := errors.Join(errs...)
		log.ApplicationLogger().Error("Some services failed to stop cleanly", "error", err)
		return err
	}
	return nil
}

func (sm *ServiceManager) startService(ctx context.Context, name string) error {
	info := sm.lookup(name)
	if info == nil {
		return fmt.Errorf("service '%s' not found", name)
	}
	if info.Service.IsRunning() {
		return nil
	}
	sm.updateServiceState(info, StateInitializing, nil)

	if err := info.Service.Start(ctx); err != nil {
		se := &errutil.ServiceError{
			Category:  errutil.CategoryInternal,
			Severity:  errutil.SeverityHigh,
			Operation: "start",
			Component: name,
			Cause:     err,
		}
		sm.updateServiceState(info, StateError, se)
		log.ApplicationLogger().Error("Service start failed", "service", name, "error", err)
		return se
	}
	sm.updateServiceState(info, StateRunning, nil)
	log.ApplicationLogger().Info("Service started", "service", name)
	return nil
}

func (sm *ServiceManager) stopService(ctx context.Context, name string) error {
	info := sm.lookup(name)
	if info == nil || !info.Service.IsRunning() {
		return nil
	}
	sm.updateServiceState(info, StateStopping, nil)
	if err := info.Service.Stop(ctx); err != nil {
		sm.updateServiceState(info, StateError, err)
		return err
	}
	sm.updateServiceState(info, StateStopped, nil)
	log.ApplicationLogger().Info("Service stopped", "service", name)
	return nil
}

// GetRunningServices lists the names of running services in start order.
func (sm *ServiceManager) GetRunningServices() []string {
	order, err := sm.calculateStartOrder()
	if err != nil {
		return nil
	}
	var out []string
	for _, name := range order {
		if info := sm.lookup(name); info != nil && info.Service.IsRunning() {
			out = append(out, name)
		}
	}
	return out
}

func (sm *ServiceManager) lookup(name string) *ServiceInfo {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.services[name]
}

// calculateStartOrder sorts by priority (desc, then registration order) and
// then moves dependencies ahead of their dependents.
func (sm *ServiceManager) calculateStartOrder() ([]string, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	infos := make([]*ServiceInfo, 0, len(sm.services))
	for _, info := range sm.services {
		infos = append(infos, info)
	}
	slices.SortFunc(infos, func(a, b *ServiceInfo) int {
		if a.Service.Priority() != b.Service.Priority() {
			return int(b.Service.Priority()) - int(a.Service.Priority())
		}
		return a.order - b.order
	})

	const (
		unvisited = iota
		visiting
		done
	)
	mark := make(map[string]int, len(infos))
	order := make([]string, 0, len(infos))

	var visit func(name string) error
	visit = func(name string) error {
		switch mark[name] {
		case visiting:
			return fmt.Errorf("circular dependency detected involving service '%s'", name)
		case done:
			return nil
		}
		info, ok := sm.services[name]
		if !ok {
			return fmt.Errorf("dependency '%s' is not registered", name)
		}
		mark[name] = visiting
		for _, dep := range info.Service.Dependencies() {
			if err := visit(dep); err != nil {
				return err
			}
		}
		mark[name] = done
		order = append(order, name)
		return nil
	}

	for _, info := range infos {
		if err := visit(info.Service.Name()); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func (sm *ServiceManager) updateServiceState(info *ServiceInfo, state ServiceState, err error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	info.State = state
	info.LastStateTime = time.Now()
	if err != nil {
		info.LastError = err
	}
}
