package rrdispatch

import (
	"context"
	"encoding/json"

	"github.com/metacraft-labs/rr-dispatcher/metrics"
)

// handleFullReset implements §4.5 Full reset: cancel every in-flight and
// queued task (emitting Cancelled for each), terminate every worker in the
// pool (reserves as well as stable), spawn a fresh stable worker, record the
// reset target as its current tick, and schedule reserve repositioning. No
// existing reserve is promoted, and no command is sent to the new stable
// worker to move it to the target. The client sees the reset as atomic: no
// response is sent for the reset task until the pool is consistent again.
func (d *Dispatcher) handleFullReset(t *Task) {
	var args struct {
		ResetLastLocation *bool `json:"reset_last_location,omitempty"`
	}
	if len(t.Payload) > 0 {
		_ = json.Unmarshal(t.Payload, &args)
	}

	d.tasksMu.Lock()
	inflight := make([]*inflightTask, 0, len(d.inflightTasks))
	for _, it := range d.inflightTasks {
		inflight = append(inflight, it)
	}
	d.tasksMu.Unlock()

	for _, it := range inflight {
		d.metrics.Counter(metrics.TasksCancelledTotal).Add(1)
		d.reportTerminal(it, failureResponse(it.task.Seq, ErrorKindCancelled.String()))
		interruptCtx, cancel := context.WithTimeout(d.ctx, d.router.CancelTimeout())
		_ = it.worker.Proxy.Interrupt(interruptCtx)
		cancel()
	}

	d.mu.Lock()
	useLastLocation := d.cfg.ResetLastLocation
	if args.ResetLastLocation != nil {
		useLastLocation = *args.ResetLastLocation
	}
	target := Location{} // trace entry point, the default reset target
	if useLastLocation {
		target = d.lastLocation
	}
	d.mu.Unlock()

	for _, w := range d.pool.All() {
		for _, queued := range w.PendingQueue.Drain() {
			d.metrics.Counter(metrics.TasksCancelledTotal).Add(1)
			d.events <- failureResponse(queued.Seq, ErrorKindCancelled.String())
		}
	}

	d.pool.TerminateAll()

	newStable, err := d.pool.Spawn(d.ctx)
	if err != nil {
		d.events <- failureResponse(t.Seq, ErrorKindResourceExhausted.String())
		return
	}
	newStable.setRole(RoleStable)
	newStable.mu.Lock()
	newStable.CurrentTick = target.Tick
	newStable.mu.Unlock()

	d.metrics.Counter(metrics.ResetsTotal).Add(1)
	d.events <- successResponse(t.Seq, nil)

	go func() { _ = d.repositionReserves(d.ctx, newStable, target) }()
}
