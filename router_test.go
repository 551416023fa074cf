package rrdispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(cfg Config, factory workerFactory) (*Router, *WorkerPool) {
	pool := newTestPool(cfg, factory)
	return newRouter(pool, cfg), pool
}

func TestRouter_StepLikePromotesFreeWorkerToStable(t *testing.T) {
	cfg := defaultConfig()
	router, pool := newTestRouter(cfg, fakeFactory())
	_, err := pool.Spawn(context.Background())
	require.NoError(t, err)

	task := NewTask("t1", 1, KindStepOver, nil, nil, DirectionForward)
	decision, err := router.Route(context.Background(), task)
	require.NoError(t, err)

	assert.Equal(t, ActionAssign, decision.Action)
	assert.Equal(t, RoleStable, decision.Worker.Role)
}

func TestRouter_StepLikeQueuesBehindBusyStable(t *testing.T) {
	cfg := defaultConfig()
	router, pool := newTestRouter(cfg, fakeFactory())
	stable, err := pool.Spawn(context.Background())
	require.NoError(t, err)
	stable.setRole(RoleStable)
	stable.setState(StateBusy)

	task := NewTask("t2", 2, KindStepIn, nil, nil, DirectionForward)
	decision, err := router.Route(context.Background(), task)
	require.NoError(t, err)

	assert.Equal(t, ActionQueueBehind, decision.Action)
	assert.Equal(t, stable.ID, decision.Worker.ID)
}

func TestRouter_JumpLikeCancelsAndReplacesWhenInterruptNotSupported(t *testing.T) {
	cfg := defaultConfig()
	cfg.PoolMax = 3
	router, pool := newTestRouter(cfg, fakeFactory())

	stable, err := pool.Spawn(context.Background())
	require.NoError(t, err)
	stable.setRole(RoleStable)
	stable.setState(StateBusy)

	task := NewTask("t3", 3, KindGotoTick, nil, &Location{Tick: 100}, DirectionAbsolute)
	decision, err := router.Route(context.Background(), task)
	require.NoError(t, err)

	assert.Equal(t, ActionCancelAndReplace, decision.Action)
	assert.NotEqual(t, stable.ID, decision.Worker.ID)
}

func TestRouter_JumpLikeInterruptsWhenSupported(t *testing.T) {
	cfg := defaultConfig()
	cfg.PoolMax = 3
	cfg.InterruptSupported = true
	router, pool := newTestRouter(cfg, fakeFactory())

	stable, err := pool.Spawn(context.Background())
	require.NoError(t, err)
	stable.setRole(RoleStable)
	stable.setState(StateBusy)

	task := NewTask("t4", 4, KindGotoLocation, nil, nil, DirectionAbsolute)
	decision, err := router.Route(context.Background(), task)
	require.NoError(t, err)

	assert.Equal(t, ActionInterruptAndReplace, decision.Action)
}

func TestRouter_InfoPrefersCloseTrackingWorkerInProximity(t *testing.T) {
	cfg := defaultConfig()
	cfg.CloseTrackingProximityTicks = 50
	router, pool := newTestRouter(cfg, fakeFactory())

	near, err := pool.Spawn(context.Background())
	require.NoError(t, err)
	near.setRole(RoleCloseTracking)
	near.CurrentTick = 980

	far, err := pool.Spawn(context.Background())
	require.NoError(t, err)
	far.setRole(RoleCloseTracking)
	far.CurrentTick = 1

	task := NewTask("t5", 5, KindLocals, nil, &Location{Tick: 1000}, DirectionForward)
	decision, err := router.Route(context.Background(), task)
	require.NoError(t, err)

	assert.Equal(t, ActionAssign, decision.Action)
	assert.Equal(t, near.ID, decision.Worker.ID)
}

func TestRouter_InfoQueuesBehindSoleStableWorkerAtPoolMaxOne(t *testing.T) {
	cfg := defaultConfig()
	cfg.PoolMax = 1
	router, pool := newTestRouter(cfg, fakeFactory())

	stable, err := pool.Spawn(context.Background())
	require.NoError(t, err)
	stable.setRole(RoleStable)
	stable.setState(StateBusy)

	task := NewTask("t5b", 10, KindLocals, nil, nil, DirectionForward)
	decision, err := router.Route(context.Background(), task)
	require.NoError(t, err)

	assert.Equal(t, ActionQueueBehind, decision.Action)
	assert.Equal(t, stable.ID, decision.Worker.ID)
}

func TestRouter_TracepointRejectsWhenNoFreeWorkerAndPoolMaxReached(t *testing.T) {
	cfg := defaultConfig()
	cfg.PoolMax = 2
	router, pool := newTestRouter(cfg, fakeFactory())

	stable, err := pool.Spawn(context.Background())
	require.NoError(t, err)
	stable.setRole(RoleStable)

	stepBehind, err := pool.Spawn(context.Background())
	require.NoError(t, err)
	stepBehind.setRole(RoleStepBehindTracking)

	task := NewTask("t6", 6, KindRunTracepoints, nil, nil, DirectionForward)
	decision, err := router.Route(context.Background(), task)

	require.Error(t, err)
	assert.Equal(t, ActionReject, decision.Action)
	assert.ErrorIs(t, err, ErrResourceExhausted)
}

func TestRouter_TracepointUsesFreeWorker(t *testing.T) {
	cfg := defaultConfig()
	router, pool := newTestRouter(cfg, fakeFactory())

	free, err := pool.Spawn(context.Background())
	require.NoError(t, err)

	task := NewTask("t7", 7, KindSetTracepoint, nil, nil, DirectionForward)
	decision, err := router.Route(context.Background(), task)
	require.NoError(t, err)

	assert.Equal(t, ActionAssign, decision.Action)
	assert.Equal(t, free.ID, decision.Worker.ID)
}

func TestRouter_PreHookCanRejectTask(t *testing.T) {
	cfg := defaultConfig()
	router, _ := newTestRouter(cfg, fakeFactory())
	router.RegisterPreHook(KindEvaluate, func(task *Task) error {
		return ErrInvalidArguments
	})

	task := NewTask("t8", 8, KindEvaluate, nil, nil, DirectionForward)
	_, err := router.Route(context.Background(), task)
	assert.ErrorIs(t, err, ErrInvalidArguments)
}

func TestRouter_UnknownKindIsRejected(t *testing.T) {
	cfg := defaultConfig()
	router, _ := newTestRouter(cfg, fakeFactory())

	task := &Task{ID: "t9", Kind: Kind("not-a-kind")}
	_, err := router.Route(context.Background(), task)
	assert.ErrorIs(t, err, ErrUnknownCommand)
}
