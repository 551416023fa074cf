package rrdispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/metacraft-labs/rr-dispatcher/logging"
	"github.com/metacraft-labs/rr-dispatcher/metrics"
)

func TestOptions_ApplyOverDefaults(t *testing.T) {
	bo := buildOptions{cfg: defaultConfig(), logger: logging.Default(), metrics: metrics.NewNoopProvider()}

	opts := []Option{
		WithPoolMax(6),
		WithCloseTrackingCount(2),
		WithInterruptSupported(),
		WithCancelTimeout(250 * time.Millisecond),
		WithStartTimeout(5 * time.Second),
		WithKillTimeout(time.Second),
		WithResetLastLocation(),
		WithCloseTrackingProximity(42),
	}
	for _, opt := range opts {
		opt(&bo)
	}

	assert.Equal(t, uint(6), bo.cfg.PoolMax)
	assert.Equal(t, uint(2), bo.cfg.CloseTrackingCount)
	assert.True(t, bo.cfg.InterruptSupported)
	assert.Equal(t, 250*time.Millisecond, bo.cfg.CancelTimeout)
	assert.Equal(t, 5*time.Second, bo.cfg.StartTimeout)
	assert.Equal(t, time.Second, bo.cfg.KillTimeout)
	assert.True(t, bo.cfg.ResetLastLocation)
	assert.Equal(t, int64(42), bo.cfg.CloseTrackingProximityTicks)
}

func TestNew_RejectsInvalidPoolMax(t *testing.T) {
	_, err := New(context.Background(), "/trace", WithPoolMax(1))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
