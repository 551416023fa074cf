package rrdispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleFullReset_CancelsInflightAndSpawnsFreshStable(t *testing.T) {
	cfg := defaultConfig()
	cfg.PoolMax = 3
	first, second := newFakeProxy(), newFakeProxy()
	d := newTestDispatcher(t, cfg, fakeFactory(first, second))

	task := NewTask("j1", 1, KindGotoTick, nil, &Location{Tick: 999}, DirectionAbsolute)
	d.handleTask(task)
	time.Sleep(20 * time.Millisecond) // let assign mark the worker busy/stable

	reset := NewTask("r1", 2, KindFullReset, nil, nil, DirectionForward)
	d.handleControl(reset)

	cancelled := recvFrame(t, d.events, time.Second)
	require.NotNil(t, cancelled.Response)
	assert.False(t, cancelled.Response.Success)
	assert.Equal(t, ErrorKindCancelled.String(), cancelled.Response.Message)

	ok := recvFrame(t, d.events, time.Second)
	require.NotNil(t, ok.Response)
	assert.True(t, ok.Response.Success)
	assert.Equal(t, int64(2), ok.Response.RequestSeq)

	stable := d.pool.Stable()
	require.NotNil(t, stable)
	assert.Equal(t, int64(0), stable.snapshot().CurrentTick)
}

func TestHandleFullReset_UsesLastLocationWhenRequested(t *testing.T) {
	cfg := defaultConfig()
	cfg.PoolMax = 3
	d := newTestDispatcher(t, cfg, fakeFactory())

	d.mu.Lock()
	d.lastLocation = Location{Tick: 4242}
	d.mu.Unlock()

	reset := NewTask("r1", 1, KindFullReset, []byte(`{"reset_last_location":true}`), nil, DirectionForward)
	d.handleControl(reset)

	ok := recvFrame(t, d.events, time.Second)
	require.NotNil(t, ok.Response)
	assert.True(t, ok.Response.Success)

	stable := d.pool.Stable()
	require.NotNil(t, stable)
	assert.Equal(t, int64(4242), stable.snapshot().CurrentTick)
}

func TestHandleFullReset_SucceedsEvenWhenPoolWasAtMax(t *testing.T) {
	cfg := defaultConfig()
	cfg.PoolMax = 2
	d := newTestDispatcher(t, cfg, fakeFactory())

	// Fill the pool to its max; TerminateAll must clear it before the
	// post-reset Spawn call, so reset still succeeds.
	_, err := d.pool.Spawn(context.Background())
	require.NoError(t, err)
	_, err = d.pool.Spawn(context.Background())
	require.NoError(t, err)

	reset := NewTask("r1", 1, KindFullReset, nil, nil, DirectionForward)
	d.handleControl(reset)

	ok := recvFrame(t, d.events, time.Second)
	require.NotNil(t, ok.Response)
	assert.True(t, ok.Response.Success)
}
