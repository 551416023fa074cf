// Package rrdispatch multiplexes a single client's debug requests across a
// bounded pool of long-lived rr replay worker processes.
//
// A Dispatcher owns exactly one trace for its whole lifetime (see
// Non-goals). It reads framed requests from a client transport, classifies
// each into a Task, routes the task to a worker in the pool according to
// the rules in router.go, and forwards worker-produced events back to the
// client in the order each worker produced them.
//
// Construction
//   - New(ctx, tracePath, opts...): builds a Dispatcher wired to spawn rr
//     workers rooted at tracePath. The Dispatcher is not started until
//     Start is called.
//
// Defaults
// Unless overridden via Option, a newly constructed Dispatcher uses:
//   - PoolMax: 4
//   - CloseTrackingCount: 1
//   - InterruptSupported: false
//   - CancelTimeout: 100ms
//   - StartTimeout: 10s
//   - KillTimeout: 2s
//   - CloseTrackingProximityTicks: 1000
//
// Channel lifecycle
// Outbound events are delivered on the channel returned by Dispatcher.Events.
// The Dispatcher closes it once Close has drained every worker and the
// intake loop has stopped; callers should range over it until closed rather
// than polling.
package rrdispatch
