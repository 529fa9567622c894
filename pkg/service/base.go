package service

import (
	"context"
	"sync"

	"github.com/small-frappuccino/bruhbot/pkg/log"
)

// BaseService implements Service from a pair of hooks. It tracks running
// state so Start and Stop are idempotent.
type BaseService struct {
	name         string
	priority     ServicePriority
	dependencies []string

	mu        sync.RWMutex
	isRunning bool

	startHook func(ctx context.Context) error
	stopHook  func(ctx context.Context) error
}

// NewBaseService creates a new base service
func NewBaseService(name string, priority ServicePriority, dependencies ...string) *BaseService {
	return &BaseService{
		name:         name,
		priority:     priority,
		dependencies: dependencies,
	}
}

// NewFuncService builds a service from start and stop functions. Either may be nil.
func NewFuncService(name string, priority ServicePriority, start, stop func(ctx context.Context) error, dependencies ...string) *BaseService {
	bs := NewBaseService(name, priority, dependencies...)
	bs.startHook = start
	bs.stopHook = stop
	return bs
}

func (bs *BaseService) Name() string              { return bs.name }
func (bs *BaseService) Priority() ServicePriority { return bs.priority }
func (bs *BaseService) Dependencies() []string    { return bs.dependencies }

// Start starts the service
func (bs *BaseService) Start(ctx context.Context) error {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if bs.isRunning {
		return nil
	}
	if bs.startHook != nil {
		if err := bs.startHook(ctx); err != nil {
			return err
		}
	}
	bs.isRunning = true
	return nil
}

// Stop stops the service. A failing stop hook is logged and the service is
// still marked stopped.
func (bs *BaseService) Stop(ctx context.Context) error {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if !bs.isRunning {
		return nil
	}
	var err error
	if bs.stopHook != nil {
		err = bs.stopHook(ctx)
		if err != nil {
			log.ApplicationLogger().Warn("Service stop hook failed", "service", bs.name, "error", err)
		}
	}
	bs.isRunning = false
	return err
}

// IsRunning returns true if the service is running
func (bs *BaseService) IsRunning() bool {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	return bs.isRunning
}
