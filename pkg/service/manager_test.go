package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	r.events = append(r.events, s)
	r.mu.Unlock()
}

func (r *recorder) hooks(name string, startErr error) (func(context.Context) error, func(context.Context) error) {
	return func(context.Context) error {
			if startErr != nil {
				return startErr
			}
			r.add("start:" + name)
			return nil
		}, func(context.Context) error {
			r.add("stop:" + name)
			return nil
		}
}

func TestStartAllHonorsPriorityAndDependencies(t *testing.T) {
	rec := &recorder{}
	sm := NewServiceManager()

	start, stop := rec.hooks("sweeper", nil)
	require.NoError(t, sm.Register(NewFuncService("sweeper", PriorityNormal, start, stop, "router")))
	start, stop = rec.hooks("gateway", nil)
	require.NoError(t, sm.Register(NewFuncService("gateway", PriorityLow, start, stop)))
	start, stop = rec.hooks("router", nil)
	require.NoError(t, sm.Register(NewFuncService("router", PriorityLow, start, stop)))

	require.NoError(t, sm.StartAll(context.Background()))
	assert.Equal(t, []string{"start:router", "start:sweeper", "start:gateway"}, rec.events)
	assert.Equal(t, []string{"router", "sweeper", "gateway"}, sm.GetRunningServices())

	assert.Equal(t, StateRunning, sm.lookup("router").State)

	rec.events = nil
	require.NoError(t, sm.StopAll())
	assert.Equal(t, []string{"stop:gateway", "stop:sweeper", "stop:router"}, rec.events)
	assert.Empty(t, sm.GetRunningServices())
}

func TestStartAllRollsBackOnFailure(t *testing.T) {
	rec := &recorder{}
	sm := NewServiceManager()

	start, stop := rec.hooks("router", nil)
	require.NoError(t, sm.Register(NewFuncService("router", PriorityHigh, start, stop)))
	start, stop = rec.hooks("gateway", errors.New("login failed"))
	require.NoError(t, sm.Register(NewFuncService("gateway", PriorityLow, start, stop)))

	err := sm.StartAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "login failed")
	assert.Equal(t, []string{"start:router", "stop:router"}, rec.events)

	assert.Equal(t, StateError, sm.lookup("gateway").State)
}

func TestRegisterRejectsDuplicatesAndCycles(t *testing.T) {
	sm := NewServiceManager()
	require.NoError(t, sm.Register(NewFuncService("a", PriorityNormal, nil, nil, "b")))
	assert.Error(t, sm.Register(NewFuncService("a", PriorityNormal, nil, nil)))
	require.NoError(t, sm.Register(NewFuncService("b", PriorityNormal, nil, nil, "a")))

	err := sm.StartAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circular dependency")
}

func TestBaseServiceIsIdempotent(t *testing.T) {
	calls := 0
	bs := NewFuncService("x", PriorityNormal, func(context.Context) error { calls++; return nil }, nil)
	require.NoError(t, bs.Start(context.Background()))
	require.NoError(t, bs.Start(context.Background()))
	assert.Equal(t, 1, calls)
	assert.True(t, bs.IsRunning())

	require.NoError(t, bs.Stop(context.Background()))
	require.NoError(t, bs.Stop(context.Background()))
	assert.False(t, bs.IsRunning())
}
