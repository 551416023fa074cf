package rrdispatch

import "time"

// Config holds the dispatcher-scoped settings recognized by the `configure`
// control task (spec.md §5). A `configure` task updates this struct
// atomically on the dispatcher thread; in-flight tasks keep the policy that
// was in effect when they started (§4.2 rule 1).
type Config struct {
	// PoolMax is the maximum number of concurrent workers. Must be >= 2.
	// Default: 4.
	PoolMax uint

	// CloseTrackingCount (K) is how many close-tracking reserve workers to
	// maintain. Must be in 0..PoolMax-2. Default: 1.
	CloseTrackingCount uint

	// InterruptSupported, when true, attempts a graceful interrupt before
	// falling back to cancel-and-replace for jump-like tasks (§4.2 rule 3).
	// Default: false.
	InterruptSupported bool

	// CancelTimeout is the interrupt grace period (§5). Default: 100ms.
	CancelTimeout time.Duration

	// StartTimeout bounds how long a worker spawn may take before it is
	// treated as WorkerSpawnFailed (§4.4). Default: 10s.
	StartTimeout time.Duration

	// KillTimeout bounds how long a worker is given to exit after SIGTERM
	// before being force-killed (§4.4, §5). Default: 2s.
	KillTimeout time.Duration

	// ResetLastLocation controls full-reset's target: the last known
	// location when true, otherwise the trace entry point (§4.5).
	ResetLastLocation bool

	// CloseTrackingProximityTicks is the configurable proximity threshold
	// used to decide whether a close-tracking worker may serve an info
	// query without repositioning (§4.2 rule 4, §9 Open Questions).
	CloseTrackingProximityTicks int64
}

// defaultConfig centralizes default values for Config. It is applied both
// when New is called without an explicit Config and as the base for the
// options builder (mirrors the teacher's defaultConfig()/New split).
func defaultConfig() Config {
	return Config{
		PoolMax:                     4,
		CloseTrackingCount:          1,
		InterruptSupported:          false,
		CancelTimeout:               100 * time.Millisecond,
		StartTimeout:                10 * time.Second,
		KillTimeout:                 2 * time.Second,
		ResetLastLocation:           false,
		CloseTrackingProximityTicks: 1000,
	}
}

// validateConfig enforces the invariants named in spec.md §5: PoolMax >= 2
// and CloseTrackingCount within 0..PoolMax-2.
func validateConfig(cfg *Config) error {
	if cfg.PoolMax < 2 {
		return ErrInvalidConfig
	}
	if cfg.PoolMax-2 < cfg.CloseTrackingCount {
		return ErrInvalidConfig
	}
	if cfg.CancelTimeout <= 0 || cfg.StartTimeout <= 0 || cfg.KillTimeout <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// clone returns a shallow copy, used when C2 applies a `configure` task so
// concurrently-read snapshots are never mutated in place.
func (cfg Config) clone() Config { return cfg }
