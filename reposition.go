package rrdispatch

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// repositionReserves schedules the creation or repositioning of one
// step-behind-tracking worker and up to closeTrackingCount close-tracking
// workers around the stable worker's new location (§4.3 Role reassignment).
// Each repositioning is modeled as an internal jump-like task sent directly
// to its worker via the worker's proxy, never reported to the client
// (§4.3: "not reported to the client"). The fan-out runs concurrently with
// golang.org/x/sync/errgroup, adapted from the teacher's ForEach helper:
// where ForEach ran arbitrary closures over generic task results, this
// keeps the same "apply to every item concurrently, join the errors" shape
// but targets a fixed, small set of reserve workers instead of arbitrary
// batches.
func (d *Dispatcher) repositionReserves(ctx context.Context, stable *Worker, target Location) error {
	reserves := d.reserveTargets(stable)
	if len(reserves) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, reserve := range reserves {
		w := reserve
		g.Go(func() error {
			return d.repositionOne(gctx, w, target)
		})
	}
	return g.Wait()
}

// reserveTargets decides which workers need repositioning: the current
// step-behind-tracking worker (or, if there is none, an idle free worker
// promoted to that role; no worker is spawned for it), plus up to
// CloseTrackingCount close-tracking workers, spawning new ones while the
// pool has room.
func (d *Dispatcher) reserveTargets(stable *Worker) []*Worker {
	var targets []*Worker

	if w := d.pool.StepBehindTracking(); w != nil {
		targets = append(targets, w)
	} else if w := d.pool.Free(); w != nil {
		w.setRole(RoleStepBehindTracking)
		targets = append(targets, w)
	}

	d.mu.Lock()
	closeTrackingCount := d.cfg.CloseTrackingCount
	d.mu.Unlock()

	existing := d.pool.CloseTracking()
	targets = append(targets, existing...)
	for uint(len(existing)) < closeTrackingCount && d.pool.CanSpawn() {
		w, err := d.pool.Spawn(context.Background())
		if err != nil {
			break
		}
		w.setRole(RoleCloseTracking)
		targets = append(targets, w)
		existing = append(existing, w)
	}

	out := targets[:0]
	for _, w := range targets {
		if w.ID != stable.ID {
			out = append(out, w)
		}
	}
	return out
}

// repositionOne drives a single reserve worker to target via an internal
// jump-like task, bypassing the router (reserve repositioning is not a
// client-visible dispatch decision).
func (d *Dispatcher) repositionOne(ctx context.Context, w *Worker, target Location) error {
	t := newInternalTask(w.ID+"-reposition", KindGotoLocation, &target)
	w.setState(StateBusy)
	w.setCurrentTask(t.ID)
	defer func() {
		w.setState(StateIdle)
		w.setCurrentTask("")
		w.mu.Lock()
		w.CurrentTick = target.Tick
		w.mu.Unlock()
		w.touch()
	}()

	if err := w.Proxy.Send(encodeCommand(t)); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case outcome, ok := <-w.Proxy.Outcomes():
			if !ok {
				return ErrDispatcherClosed
			}
			if outcome.Err != "" {
				return NewTaskError(ErrorKindWorkerFailed, t.ID, t.Kind, nil)
			}
			return nil
		}
	}
}
