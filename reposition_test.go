package rrdispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveTargets_PromotesFreeWorkerAndSpawnsCloseTracking(t *testing.T) {
	cfg := defaultConfig()
	cfg.PoolMax = 4
	cfg.CloseTrackingCount = 1

	d := newTestDispatcher(t, cfg, fakeFactory())

	stable, err := d.pool.Spawn(context.Background())
	require.NoError(t, err)
	stable.setRole(RoleStable)

	_, err = d.pool.Spawn(context.Background())
	require.NoError(t, err)

	targets := d.reserveTargets(stable)
	require.Len(t, targets, 2)

	var roles []Role
	for _, w := range targets {
		roles = append(roles, w.Role)
	}
	assert.Contains(t, roles, RoleStepBehindTracking)
	assert.Contains(t, roles, RoleCloseTracking)
}

func TestReserveTargets_ExcludesTheStableWorkerItself(t *testing.T) {
	cfg := defaultConfig()
	cfg.PoolMax = 2
	cfg.CloseTrackingCount = 0

	d := newTestDispatcher(t, cfg, fakeFactory())

	stable, err := d.pool.Spawn(context.Background())
	require.NoError(t, err)
	stable.setRole(RoleStable)

	targets := d.reserveTargets(stable)
	for _, w := range targets {
		assert.NotEqual(t, stable.ID, w.ID)
	}
}

func TestRepositionOne_SendsGotoLocationAndUpdatesTick(t *testing.T) {
	cfg := defaultConfig()
	proxy := newFakeProxy()
	d := newTestDispatcher(t, cfg, fakeFactory(proxy))

	w, err := d.pool.Spawn(context.Background())
	require.NoError(t, err)
	w.setRole(RoleStepBehindTracking)

	done := make(chan error, 1)
	go func() { done <- d.repositionOne(context.Background(), w, Location{Tick: 500}) }()

	proxy.succeed()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for repositionOne")
	}

	w.mu.Lock()
	tick := w.CurrentTick
	taskID := w.CurrentTaskID
	state := w.State
	w.mu.Unlock()

	assert.Equal(t, int64(500), tick)
	assert.Equal(t, "", taskID)
	assert.Equal(t, StateIdle, state)
	require.Len(t, proxy.sent, 1)
}

func TestRepositionOne_WorkerFailureSurfacesAsError(t *testing.T) {
	cfg := defaultConfig()
	proxy := newFakeProxy()
	d := newTestDispatcher(t, cfg, fakeFactory(proxy))

	w, err := d.pool.Spawn(context.Background())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- d.repositionOne(context.Background(), w, Location{Tick: 1}) }()

	proxy.outcomes <- WorkerOutcome{Err: "boom"}

	select {
	case err := <-done:
		require.Error(t, err)
		te, ok := ExtractTaskError(err)
		require.True(t, ok)
		assert.Equal(t, ErrorKindWorkerFailed, te.Kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for repositionOne failure")
	}
}

func TestRepositionReserves_NoReservesIsNoop(t *testing.T) {
	cfg := defaultConfig()
	cfg.PoolMax = 2
	cfg.CloseTrackingCount = 0
	d := newTestDispatcher(t, cfg, fakeFactory())

	stable, err := d.pool.Spawn(context.Background())
	require.NoError(t, err)
	stable.setRole(RoleStable)

	err = d.repositionReserves(context.Background(), stable, Location{Tick: 1})
	assert.NoError(t, err)
}
