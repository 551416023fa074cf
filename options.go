package rrdispatch

import (
	"time"

	"github.com/metacraft-labs/rr-dispatcher/logging"
	"github.com/metacraft-labs/rr-dispatcher/metrics"
)

// Option configures a Dispatcher at construction time. Use New(ctx, tracePath, opts...)
// to build one.
type Option func(*buildOptions)

// buildOptions is the internal builder state options assemble into, mirroring
// the teacher's configOptions split between a plain Config and the
// construction-only knobs (logger, metrics) that are not part of the
// live-tunable Config.
type buildOptions struct {
	cfg     Config
	logger  logging.Logger
	metrics metrics.Provider
}

// WithPoolMax sets the maximum number of concurrent workers (must be >= 2).
func WithPoolMax(n uint) Option {
	return func(bo *buildOptions) { bo.cfg.PoolMax = n }
}

// WithCloseTrackingCount sets K, the number of close-tracking reserve workers.
func WithCloseTrackingCount(n uint) Option {
	return func(bo *buildOptions) { bo.cfg.CloseTrackingCount = n }
}

// WithInterruptSupported enables the interrupt-before-replace policy for
// jump-like tasks (§4.2 rule 3).
func WithInterruptSupported() Option {
	return func(bo *buildOptions) { bo.cfg.InterruptSupported = true }
}

// WithCancelTimeout overrides the interrupt grace period (default 100ms).
func WithCancelTimeout(d time.Duration) Option {
	return func(bo *buildOptions) { bo.cfg.CancelTimeout = d }
}

// WithStartTimeout overrides the worker spawn timeout (default 10s).
func WithStartTimeout(d time.Duration) Option {
	return func(bo *buildOptions) { bo.cfg.StartTimeout = d }
}

// WithKillTimeout overrides the post-SIGTERM kill timeout (default 2s).
func WithKillTimeout(d time.Duration) Option {
	return func(bo *buildOptions) { bo.cfg.KillTimeout = d }
}

// WithResetLastLocation makes full-reset target the last known location
// rather than the trace entry point.
func WithResetLastLocation() Option {
	return func(bo *buildOptions) { bo.cfg.ResetLastLocation = true }
}

// WithCloseTrackingProximity overrides the tick-distance threshold used to
// decide whether a close-tracking worker may serve an info query in place
// (§9 Open Questions, default 1000).
func WithCloseTrackingProximity(ticks int64) Option {
	return func(bo *buildOptions) { bo.cfg.CloseTrackingProximityTicks = ticks }
}

// WithLogger supplies the structured logger every component is scoped with.
// Defaults to logging.Default() (a logrus-backed Logger, see logging/logrus.go).
func WithLogger(l logging.Logger) Option {
	return func(bo *buildOptions) { bo.logger = l }
}

// WithMetrics supplies a metrics.Provider. Defaults to metrics.NewNoopProvider().
func WithMetrics(p metrics.Provider) Option {
	return func(bo *buildOptions) { bo.metrics = p }
}
