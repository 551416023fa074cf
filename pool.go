package rrdispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/metacraft-labs/rr-dispatcher/logging"
	"github.com/metacraft-labs/rr-dispatcher/metrics"
)

// workerFactory spawns a new WorkerProxy. Production code uses
// newProcessProxy; tests substitute a fake to avoid spawning rr.
type workerFactory func(logging.Logger) WorkerProxy

// WorkerPool is the C3 component (§4.3, §4.5). It owns the set of live
// workers and enforces the role invariants: at most one stable worker, at
// most one step-behind-tracking worker, zero to closeTrackingCount
// close-tracking workers, and total workers <= poolMax. Like the teacher's
// pool/fixed.go, it is the sole owner of worker lifetime — but unlike the
// teacher's reusable Get/Put pool, acquisition here is role-directed rather
// than anonymous, because callers (the router) care which worker they get,
// not merely that they got one (see DESIGN.md: pool adaptation).
//
// Every method takes mu, because the pool is called both from the
// dispatcher's intake goroutine and from the per-task and repositioning
// goroutines it starts (crash recovery, reserve spawning).
type WorkerPool struct {
	mu sync.Mutex

	cfg     Config
	factory workerFactory
	logger  logging.Logger
	metrics metrics.Provider

	tracePath string
	workers   map[string]*Worker
}

func newWorkerPool(cfg Config, tracePath string, factory workerFactory, logger logging.Logger, mp metrics.Provider) *WorkerPool {
	return &WorkerPool{
		cfg:       cfg,
		factory:   factory,
		logger:    logger,
		metrics:   mp,
		tracePath: tracePath,
		workers:   make(map[string]*Worker),
	}
}

// Len reports how many workers the pool currently manages (spawning
// through draining; dead workers are reaped and excluded).
func (p *WorkerPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// Stable returns the current stable-role worker, if any (§3: at most one).
func (p *WorkerPool) Stable() *Worker {
	return p.findRole(RoleStable)
}

// StepBehindTracking returns the current step-behind-tracking worker, if any.
func (p *WorkerPool) StepBehindTracking() *Worker {
	return p.findRole(RoleStepBehindTracking)
}

// CloseTracking returns every close-tracking worker, ordered by ID for
// determinism in tests and logs.
func (p *WorkerPool) CloseTracking() []*Worker {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*Worker
	for _, w := range p.workers {
		if w.Role == RoleCloseTracking {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Free returns an idle, free-role worker if one exists, else nil.
func (p *WorkerPool) Free() *Worker {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, w := range p.workers {
		if w.Role == RoleFree && w.State == StateIdle {
			return w
		}
	}
	return nil
}

func (p *WorkerPool) findRole(r Role) *Worker {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, w := range p.workers {
		if w.Role == r {
			return w
		}
	}
	return nil
}

// CanSpawn reports whether another worker can be created under pool_max
// (§4.2 rule 3, §4.3 spawn path).
func (p *WorkerPool) CanSpawn() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return uint(len(p.workers)) < p.cfg.PoolMax
}

// Spawn starts a new worker process and registers it with the pool in
// RoleFree/StateSpawning, transitioning to StateIdle on success (§4.3).
// Returns ErrResourceExhausted if pool_max is already reached.
func (p *WorkerPool) Spawn(ctx context.Context) (*Worker, error) {
	p.mu.Lock()
	if uint(len(p.workers)) >= p.cfg.PoolMax {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: pool_max=%d reached", ErrResourceExhausted, p.cfg.PoolMax)
	}
	id := uuid.NewString()
	proxy := p.factory(p.logger.WithField("worker_id", id))
	w := newWorkerRecord(id, proxy)
	p.workers[id] = w
	p.mu.Unlock()

	if err := proxy.Start(ctx, p.tracePath, p.cfg.StartTimeout); err != nil {
		p.mu.Lock()
		delete(p.workers, id)
		p.mu.Unlock()
		p.metrics.Counter(metrics.WorkersDiedTotal).Add(1)
		return nil, fmt.Errorf("%w: %v", ErrResourceExhausted, err)
	}

	w.setState(StateIdle)
	w.PID = proxy.PID()
	p.metrics.Counter(metrics.WorkersSpawnedTotal).Add(1)
	p.metrics.UpDownCounter(metrics.WorkersActive).Add(1)
	p.logger.WithFields(logging.Fields{"worker_id": id, "pid": w.PID}).Infof("worker spawned")
	return w, nil
}

// Reap removes a dead worker from the pool bookkeeping and finalizes any
// tasks still sitting in its pending queue (§4.5 HandleWorkerCrash).
func (p *WorkerPool) Reap(id string) []*Task {
	p.mu.Lock()
	w, ok := p.workers[id]
	if ok {
		delete(p.workers, id)
	}
	p.mu.Unlock()
	if !ok {
		return nil
	}
	w.setState(StateDead)
	p.metrics.UpDownCounter(metrics.WorkersActive).Add(-1)
	p.metrics.Counter(metrics.WorkersDiedTotal).Add(1)
	return w.PendingQueue.Drain()
}

// All returns a snapshot slice of every worker currently tracked.
func (p *WorkerPool) All() []*Worker {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Worker, 0, len(p.workers))
	for _, w := range p.workers {
		out = append(out, w)
	}
	return out
}

// TerminateAll tears down every managed worker (§4.5 FullReset, and
// dispatcher shutdown). killTimeout bounds how long each worker gets to
// exit gracefully before SIGKILL.
func (p *WorkerPool) TerminateAll() {
	p.mu.Lock()
	workers := make([]*Worker, 0, len(p.workers))
	for _, w := range p.workers {
		workers = append(workers, w)
	}
	p.workers = make(map[string]*Worker)
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			w.setState(StateTerminated)
			w.Proxy.Terminate(p.cfg.KillTimeout)
		}(w)
	}
	wg.Wait()
}
