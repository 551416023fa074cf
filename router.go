package rrdispatch

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Action is what the dispatcher should do with a routed task (§4.2).
type Action int

const (
	ActionAssign Action = iota
	ActionQueueBehind
	ActionInterruptAndReplace
	ActionCancelAndReplace
	ActionReject
)

func (a Action) String() string {
	switch a {
	case ActionAssign:
		return "assign"
	case ActionQueueBehind:
		return "queue-behind"
	case ActionInterruptAndReplace:
		return "interrupt-and-replace"
	case ActionCancelAndReplace:
		return "cancel-and-replace"
	default:
		return "reject"
	}
}

// DispatchDecision is the router's verdict for one task (§4.2). The worker
// currently occupying a replaced slot (for interrupt/cancel-and-replace) is
// looked up by the dispatcher from the pool's own inflight bookkeeping, not
// carried here, since Route only decides where the *new* task goes.
type DispatchDecision struct {
	Worker *Worker
	Action Action
}

// PreHook runs synchronously before a task is bound to a worker; it may
// mutate the task in place (e.g. normalize a location) or reject it.
type PreHook func(*Task) error

// Router is the C2 Task Router: it owns no worker state itself, only the
// policy for choosing one, given the pool's current view (§4.2).
type Router struct {
	pool *WorkerPool
	cfg  Config

	preHooks map[Kind]PreHook
}

func newRouter(pool *WorkerPool, cfg Config) *Router {
	return &Router{pool: pool, cfg: cfg, preHooks: make(map[Kind]PreHook)}
}

// RegisterPreHook installs a pre-hook for a task kind (§4.2 Pre-hooks).
func (r *Router) RegisterPreHook(k Kind, h PreHook) {
	r.preHooks[k] = h
}

// Route converts an inbound task into a DispatchDecision. Control-kind
// tasks are never routed here: the dispatcher handles them inline per rule
// 1 before Route is ever called.
func (r *Router) Route(ctx context.Context, t *Task) (DispatchDecision, error) {
	if hook, ok := r.preHooks[t.Kind]; ok {
		if err := hook(t); err != nil {
			return DispatchDecision{}, err
		}
	}

	cat, ok := t.Category()
	if !ok {
		return DispatchDecision{}, fmt.Errorf("%w: unknown task kind %q", ErrUnknownCommand, t.Kind)
	}

	switch cat {
	case CategoryStepLike:
		return r.routeStepLike(ctx, t)
	case CategoryJumpLike:
		return r.routeJumpLike(ctx, t)
	case CategoryInfo:
		return r.routeInfo(ctx, t)
	case CategoryTracepoint:
		return r.routeTracepoint(ctx, t)
	default:
		return DispatchDecision{}, fmt.Errorf("%w: task kind %q has no routing rule", ErrUnknownCommand, t.Kind)
	}
}

// routeStepLike implements rule 2: step-like tasks always bind to stable.
func (r *Router) routeStepLike(ctx context.Context, t *Task) (DispatchDecision, error) {
	stable := r.pool.Stable()
	if stable == nil {
		promoted, err := r.promoteStable(ctx)
		if err != nil {
			return DispatchDecision{}, err
		}
		stable = promoted
	}

	stable.mu.Lock()
	busy := stable.State == StateBusy
	stable.mu.Unlock()

	if busy {
		return DispatchDecision{Worker: stable, Action: ActionQueueBehind}, nil
	}
	return DispatchDecision{Worker: stable, Action: ActionAssign}, nil
}

// promoteStable promotes a free or step-behind-tracking worker to stable,
// preferring step-behind-tracking to reuse its proximity (rule 2).
func (r *Router) promoteStable(ctx context.Context) (*Worker, error) {
	if w := r.pool.StepBehindTracking(); w != nil {
		w.setRole(RoleStable)
		return w, nil
	}
	if w := r.pool.Free(); w != nil {
		w.setRole(RoleStable)
		return w, nil
	}
	if r.pool.CanSpawn() {
		w, err := r.pool.Spawn(ctx)
		if err != nil {
			return nil, err
		}
		w.setRole(RoleStable)
		return w, nil
	}
	return nil, fmt.Errorf("%w: no worker available to promote to stable", ErrResourceExhausted)
}

// routeJumpLike implements rule 3: interruptible, with cancel-and-replace
// or interrupt-then-cancel-and-replace fallback.
func (r *Router) routeJumpLike(ctx context.Context, t *Task) (DispatchDecision, error) {
	stable := r.pool.Stable()
	if stable == nil {
		promoted, err := r.promoteStable(ctx)
		if err != nil {
			return DispatchDecision{}, err
		}
		return DispatchDecision{Worker: promoted, Action: ActionAssign}, nil
	}

	stable.mu.Lock()
	busy := stable.State == StateBusy
	stable.mu.Unlock()

	if !busy {
		return DispatchDecision{Worker: stable, Action: ActionAssign}, nil
	}

	action := ActionCancelAndReplace
	if r.cfg.InterruptSupported {
		action = ActionInterruptAndReplace
	}

	replacement, err := r.selectWorker(ctx, roleCompatibleForJump)
	if err != nil {
		return DispatchDecision{}, err
	}
	return DispatchDecision{Worker: replacement, Action: action}, nil
}

// routeInfo implements rule 4: proximity-first, then idle-non-stable, then
// spawn, then queue.
func (r *Router) routeInfo(ctx context.Context, t *Task) (DispatchDecision, error) {
	if t.Target != nil {
		if w := r.closestCloseTracking(t.Target.Tick); w != nil {
			return DispatchDecision{Worker: w, Action: ActionAssign}, nil
		}
	}

	if w := r.idleNonStable(); w != nil {
		return DispatchDecision{Worker: w, Action: ActionAssign}, nil
	}

	if r.pool.CanSpawn() {
		w, err := r.pool.Spawn(ctx)
		if err == nil {
			return DispatchDecision{Worker: w, Action: ActionAssign}, nil
		}
	}

	if w := r.anyWorker(); w != nil {
		return DispatchDecision{Worker: w, Action: ActionQueueBehind}, nil
	}

	return DispatchDecision{}, fmt.Errorf("%w: no worker available to serve info task", ErrResourceExhausted)
}

// routeTracepoint implements rule 5: free-only, spawn, or reject.
func (r *Router) routeTracepoint(ctx context.Context, t *Task) (DispatchDecision, error) {
	if w := r.pool.Free(); w != nil {
		return DispatchDecision{Worker: w, Action: ActionAssign}, nil
	}
	if r.pool.CanSpawn() {
		w, err := r.pool.Spawn(ctx)
		if err == nil {
			return DispatchDecision{Worker: w, Action: ActionAssign}, nil
		}
	}
	return DispatchDecision{Action: ActionReject}, fmt.Errorf("%w: tracepoint tasks never preempt navigation", ErrResourceExhausted)
}

// roleCompatibleForJump excludes stable and tracking roles so jump-like
// replacement workers never fight with navigation reserves.
func roleCompatibleForJump(r Role) bool {
	return r == RoleFree || r == RoleCloseTracking
}

// selectWorker implements the worker-selection order shared by rules 3-5
// (§4.2 Worker selection): free -> step-behind-tracking -> close-tracking ->
// spawn -> queue behind an existing compatible worker, ties broken by
// lowest worker_id.
func (r *Router) selectWorker(ctx context.Context, compatible func(Role) bool) (*Worker, error) {
	candidates := r.pool.All()
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })

	for _, w := range candidates {
		if w.Role == RoleFree && w.State == StateIdle {
			return w, nil
		}
	}
	for _, w := range candidates {
		if w.Role == RoleStepBehindTracking && compatible(w.Role) && w.State == StateIdle {
			return w, nil
		}
	}
	for _, w := range candidates {
		if w.Role == RoleCloseTracking && compatible(w.Role) && w.State == StateIdle {
			return w, nil
		}
	}
	if r.pool.CanSpawn() {
		return r.pool.Spawn(ctx)
	}
	for _, w := range candidates {
		if compatible(w.Role) {
			return w, nil
		}
	}
	return nil, fmt.Errorf("%w: no compatible worker for selection", ErrResourceExhausted)
}

func (r *Router) idleNonStable() *Worker {
	candidates := r.pool.All()
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })
	for _, w := range candidates {
		if w.Role != RoleStable && w.State == StateIdle {
			return w
		}
	}
	return nil
}

// anyWorker is rule 4's literal last resort: queue behind an existing
// worker, stable included, rather than reject (§8 Scenario 3: with
// pool_max=1 a single busy stable worker must still accept a queued info
// task, never ErrResourceExhausted).
func (r *Router) anyWorker() *Worker {
	candidates := r.pool.All()
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })
	return candidates[0]
}

// closestCloseTracking returns the close-tracking worker whose current_tick
// is within CloseTrackingProximityTicks of target, preferring the nearest.
func (r *Router) closestCloseTracking(targetTick int64) *Worker {
	var best *Worker
	var bestDist int64
	for _, w := range r.pool.CloseTracking() {
		w.mu.Lock()
		dist := w.CurrentTick - targetTick
		if dist < 0 {
			dist = -dist
		}
		tick := w.CurrentTick
		w.mu.Unlock()

		if dist > r.cfg.CloseTrackingProximityTicks {
			continue
		}
		if best == nil || dist < bestDist || (dist == bestDist && w.ID < best.ID) {
			best = w
			bestDist = dist
			_ = tick
		}
	}
	return best
}

// CancelTimeout exposes the configured interrupt grace period, used by the
// dispatcher when awaiting an interrupt ack (§4.2 cancellation semantics).
func (r *Router) CancelTimeout() time.Duration { return r.cfg.CancelTimeout }
