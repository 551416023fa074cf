package rrdispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/metacraft-labs/rr-dispatcher/logging"
	"github.com/metacraft-labs/rr-dispatcher/metrics"
)

// inflightTask tracks a task currently Busy on a worker, so a `cancel`
// control task or a replacement decision can reach it (§4.2 cancellation
// semantics). reported guards the "exactly one terminal response" invariant
// (§8) when both runOnWorker and a replacement path (cancelAndReplace,
// full-reset) race to answer the same task.
type inflightTask struct {
	task     *Task
	worker   *Worker
	done     chan struct{}
	reported sync.Once
}

// reportTerminal sends frame for it.task's terminal response exactly once,
// however many of runOnWorker's exit paths and the dispatcher's own
// replacement/reset paths race to produce one.
func (d *Dispatcher) reportTerminal(it *inflightTask, frame OutboundFrame) {
	it.reported.Do(func() {
		if it.task.internal {
			return
		}
		d.events <- frame
	})
}

// Dispatcher is the top-level orchestrator wiring C1 (intake/outbound
// framing), C2 (Router), C3 (WorkerPool) and C5 (reset/recovery) together.
// Start's loop takes every routing decision, but the per-task goroutines
// started by assign also remove finished tasks from the inflight map, update
// lastLocation and call into the pool for crash recovery; cfg and
// lastLocation are therefore guarded by mu and the inflight map by tasksMu.
type Dispatcher struct {
	mu  sync.Mutex
	cfg Config

	tracePath string
	pool      *WorkerPool
	router    *Router
	logger    logging.Logger
	metrics   metrics.Provider

	ctx    context.Context
	cancel context.CancelFunc

	events   chan OutboundFrame
	fatalCh  chan error
	inflight sync.WaitGroup
	lc       *lifecycleCoordinator

	inflightTasks map[string]*inflightTask
	tasksMu       sync.Mutex

	lastLocation Location

	fatal atomic.Bool
}

// Fatal reports whether the dispatcher has raised a dispatcher-level Fatal
// (§4.5/§7). The CLI layer checks this after Start returns to choose between
// exit code 0 (clean shutdown) and exit code 3 (fatal runtime error).
func (d *Dispatcher) Fatal() bool { return d.fatal.Load() }

// New builds a Dispatcher rooted at tracePath. The Dispatcher does not spawn
// any worker until Start is called and the first task arrives.
func New(ctx context.Context, tracePath string, opts ...Option) (*Dispatcher, error) {
	bo := buildOptions{cfg: defaultConfig(), logger: logging.Default(), metrics: metrics.NewNoopProvider()}
	for _, opt := range opts {
		opt(&bo)
	}
	if err := validateConfig(&bo.cfg); err != nil {
		return nil, err
	}

	dctx, cancel := context.WithCancel(ctx)

	d := &Dispatcher{
		cfg:           bo.cfg,
		tracePath:     tracePath,
		logger:        bo.logger,
		metrics:       bo.metrics,
		ctx:           dctx,
		cancel:        cancel,
		events:        make(chan OutboundFrame, 256),
		fatalCh:       make(chan error, 1),
		inflightTasks: make(map[string]*inflightTask),
	}
	d.pool = newWorkerPool(bo.cfg, tracePath, func(l logging.Logger) WorkerProxy {
		return newProcessProxy(l)
	}, bo.logger, bo.metrics)
	d.router = newRouter(d.pool, bo.cfg)
	d.lc = newLifecycleCoordinator(cancel, &d.inflight, d.pool.TerminateAll, func() { close(d.events) })

	fatalOut := make(chan error, 1)
	forwarder := newFatalForwarder(d.fatalCh, fatalOut, dctx.Done(), cancel, &d.inflight)
	go forwarder.run()
	go d.forwardFatal(fatalOut)

	return d, nil
}

// forwardFatal turns the single Fatal error the fatalForwarder lets through
// into an outbound "fatal" event frame (§7: "dispatcher initiates shutdown
// with exit code 3" — the CLI layer reads Fatal() to choose that exit code).
func (d *Dispatcher) forwardFatal(fatalOut <-chan error) {
	select {
	case err, ok := <-fatalOut:
		if !ok {
			return
		}
		d.fatal.Store(true)
		body, _ := json.Marshal(map[string]string{"message": err.Error()})
		select {
		case d.events <- OutboundFrame{Event: &Event{Event: "fatal", Body: body}}:
		case <-d.ctx.Done():
		}
	case <-d.ctx.Done():
	}
}

// Events returns the channel of outbound frames (Responses and Events).
// Callers should range over it until it is closed by Close.
func (d *Dispatcher) Events() <-chan OutboundFrame { return d.events }

// Close runs the shutdown sequence exactly once (see lifecycle.go).
func (d *Dispatcher) Close() { d.lc.Close() }

// Start runs the intake loop: it blocks reading frames from r until ctx is
// cancelled or r returns EOF, converting each into a Task and dispatching
// it. Outbound frames are written to w in a separate goroutine so a slow
// client socket never blocks the dispatcher thread (§5).
func (d *Dispatcher) Start(r io.Reader, w io.Writer) error {
	writer := newFrameWriter(w)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for frame := range d.events {
			if err := writer.Write(frame); err != nil {
				d.logger.WithError(err).Warnf("outbound write failed")
			}
		}
	}()

	reader := newFrameReader(r)
	for {
		select {
		case <-d.ctx.Done():
			d.Close()
			<-writerDone
			return nil
		default:
		}

		req, err := reader.ReadRequest()
		if err != nil {
			if te, ok := ExtractTaskError(err); ok {
				d.logger.WithError(te).Warnf("dropping malformed frame")
				continue
			}
			d.Close()
			<-writerDone
			if err == io.EOF {
				return nil
			}
			return err
		}

		task, err := requestToTask(req)
		if err != nil {
			d.events <- failureResponse(req.Seq, errMessage(err))
			continue
		}
		d.handleTask(task)
	}
}

func errMessage(err error) string {
	if te, ok := ExtractTaskError(err); ok {
		return te.Message()
	}
	switch {
	case errors.Is(err, ErrResourceExhausted):
		return ErrorKindResourceExhausted.String()
	case errors.Is(err, ErrUnknownCommand):
		return ErrorKindUnknownCommand.String()
	case errors.Is(err, ErrInvalidArguments):
		return ErrorKindInvalidArguments.String()
	case errors.Is(err, ErrNoSuchTask):
		return ErrorKindNoSuchTask.String()
	}
	return err.Error()
}

// handleTask is the single entry point for every task the dispatcher
// thread processes, whether from the client or from internal repositioning
// (§4.2 rule 1 for control tasks; everything else goes through the router).
func (d *Dispatcher) handleTask(t *Task) {
	if cat, _ := t.Category(); cat == CategoryControl {
		d.handleControl(t)
		return
	}

	decision, err := d.router.Route(d.ctx, t)
	if err != nil {
		d.metrics.Counter(metrics.TasksFailedTotal).Add(1)
		d.events <- failureResponse(t.Seq, errMessage(err))
		return
	}
	d.applyDecision(t, decision)
}

func (d *Dispatcher) applyDecision(t *Task, decision DispatchDecision) {
	switch decision.Action {
	case ActionAssign:
		d.assign(decision.Worker, t)
	case ActionQueueBehind:
		decision.Worker.PendingQueue.Push(t)
	case ActionInterruptAndReplace:
		d.interruptAndReplace(decision.Worker, t)
	case ActionCancelAndReplace:
		d.cancelAndReplace(decision.Worker, t)
	case ActionReject:
		d.metrics.Counter(metrics.TasksFailedTotal).Add(1)
		d.events <- failureResponse(t.Seq, ErrorKindResourceExhausted.String())
	}
}

// assign binds t to w and runs it on a dedicated goroutine so the
// dispatcher thread is never blocked waiting on worker I/O (§5).
func (d *Dispatcher) assign(w *Worker, t *Task) {
	w.setState(StateBusy)
	w.setCurrentTask(t.ID)

	done := make(chan struct{})
	it := &inflightTask{task: t, worker: w, done: done}
	d.tasksMu.Lock()
	d.inflightTasks[t.ID] = it
	d.tasksMu.Unlock()

	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		defer close(done)
		d.runOnWorker(it)

		d.tasksMu.Lock()
		delete(d.inflightTasks, t.ID)
		d.tasksMu.Unlock()

		w.setState(StateIdle)
		w.setCurrentTask("")
		w.touch()

		if next := w.PendingQueue.Pop(); next != nil {
			d.assign(w, next)
		}
	}()
}

// runOnWorker sends it.task's command and pumps events/outcome to the
// outbound channel. A worker death mid-task surfaces as WorkerFailed (§4.5).
// Every exit path reports through it.reported, so a concurrent
// cancelAndReplace or full-reset that already answered this task's seq
// cannot be followed by a second, contradictory response (§8: "exactly one
// terminal response is emitted").
func (d *Dispatcher) runOnWorker(it *inflightTask) {
	w, t := it.worker, it.task
	start := time.Now()
	if err := w.Proxy.Send(encodeCommand(t)); err != nil {
		d.metrics.Counter(metrics.TasksFailedTotal).Add(1)
		d.reportTerminal(it, failureResponse(t.Seq, ErrorKindWorkerFailed.String()))
		d.handleWorkerCrash(w, t)
		return
	}

	events := w.Proxy.Events()
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				// The worker closes its event stream once it exits; stop
				// selecting on it and let Outcomes/Dead report the death.
				events = nil
				continue
			}
			if evt.Kind == WorkerEventLocation {
				var loc Location
				if json.Unmarshal(evt.Body, &loc) == nil {
					w.mu.Lock()
					w.CurrentTick = loc.Tick
					w.mu.Unlock()
					d.mu.Lock()
					d.lastLocation = loc
					d.mu.Unlock()
				}
			}
			if !t.internal {
				d.events <- workerEventFrame(evt.Kind, evt.Body)
			}

		case outcome, ok := <-w.Proxy.Outcomes():
			if !ok {
				d.metrics.Counter(metrics.TasksFailedTotal).Add(1)
				d.reportTerminal(it, failureResponse(t.Seq, ErrorKindWorkerFailed.String()))
				d.handleWorkerCrash(w, t)
				return
			}
			d.metrics.Histogram(metrics.TaskDispatchLatencySecs).Record(time.Since(start).Seconds())
			d.finish(it, outcome)
			return

		case <-w.Dead():
			d.metrics.Counter(metrics.TasksFailedTotal).Add(1)
			d.reportTerminal(it, failureResponse(t.Seq, ErrorKindWorkerFailed.String()))
			d.handleWorkerCrash(w, t)
			return
		}
	}
}

func (d *Dispatcher) finish(it *inflightTask, outcome WorkerOutcome) {
	t := it.task
	switch {
	case outcome.Interrupted:
		d.metrics.Counter(metrics.TasksCancelledTotal).Add(1)
		d.reportTerminal(it, failureResponse(t.Seq, ErrorKindCancelled.String()))
	case outcome.Err != "":
		d.metrics.Counter(metrics.TasksFailedTotal).Add(1)
		d.reportTerminal(it, failureResponse(t.Seq, outcome.Err))
	default:
		d.metrics.Counter(metrics.TasksRoutedTotal).Add(1)
		d.reportTerminal(it, successResponse(t.Seq, nil))
	}
}

// Dead exposes the worker's process-death signal for the select in
// runOnWorker; defined here (not worker.go) because it forwards straight
// to the proxy rather than to Worker's own bookkeeping.
func (w *Worker) Dead() <-chan struct{} {
	if w.Proxy == nil {
		return nil
	}
	return w.Proxy.Dead()
}

func (d *Dispatcher) handleControl(t *Task) {
	switch t.Kind {
	case KindConfigure:
		d.handleConfigure(t)
	case KindFullReset:
		d.handleFullReset(t)
	case KindCancel:
		d.handleCancel(t)
	case KindShutdown:
		d.events <- successResponse(t.Seq, nil)
		go d.Close()
	}
}

func (d *Dispatcher) handleConfigure(t *Task) {
	var patch Config
	if err := json.Unmarshal(t.Payload, &patch); err != nil {
		d.events <- failureResponse(t.Seq, ErrorKindInvalidArguments.String())
		return
	}
	d.mu.Lock()
	merged := d.cfg.clone()
	if patch.PoolMax != 0 {
		merged.PoolMax = patch.PoolMax
	}
	if patch.CancelTimeout != 0 {
		merged.CancelTimeout = patch.CancelTimeout
	}
	if patch.CloseTrackingCount != 0 {
		merged.CloseTrackingCount = patch.CloseTrackingCount
	}
	if err := validateConfig(&merged); err != nil {
		d.mu.Unlock()
		d.events <- failureResponse(t.Seq, ErrorKindInvalidArguments.String())
		return
	}
	d.cfg = merged
	d.mu.Unlock()
	d.events <- successResponse(t.Seq, nil)
}

func (d *Dispatcher) handleCancel(t *Task) {
	var args struct {
		TaskID string `json:"task_id"`
	}
	_ = json.Unmarshal(t.Payload, &args)

	d.tasksMu.Lock()
	it, ok := d.inflightTasks[args.TaskID]
	d.tasksMu.Unlock()

	if !ok {
		d.events <- failureResponse(t.Seq, ErrorKindNoSuchTask.String())
		return
	}
	d.interrupt(it)
	d.events <- successResponse(t.Seq, nil)
}

// interrupt issues a graceful interrupt to the worker running it.task and
// waits up to CancelTimeout for an ack (§4.2 cancellation semantics).
func (d *Dispatcher) interrupt(it *inflightTask) {
	it.worker.setState(StateInterrupting)
	ctx, cancel := context.WithTimeout(d.ctx, d.router.CancelTimeout())
	defer cancel()

	ackCh := make(chan error, 1)
	sentAt := time.Now()
	go func() { ackCh <- it.worker.Proxy.Interrupt(ctx) }()

	select {
	case <-ackCh:
		d.metrics.Histogram(metrics.InterruptAckSeconds).Record(time.Since(sentAt).Seconds())
	case <-ctx.Done():
		d.logger.WithField("task_id", it.task.ID).Warnf("interrupt timed out, worker marked uncertain")
	case <-it.done:
	}
}

func (d *Dispatcher) interruptAndReplace(newWorker *Worker, newTask *Task) {
	if stable := d.pool.Stable(); stable != nil {
		d.tasksMu.Lock()
		var old *inflightTask
		for _, it := range d.inflightTasks {
			if it.worker.ID == stable.ID {
				old = it
				break
			}
		}
		d.tasksMu.Unlock()
		if old != nil {
			d.interrupt(old)
		}
		// The displaced worker's position is now stale relative to the
		// cursor; it goes back to the pool demoted, never left stable (§4.2
		// rule 3).
		stable.setRole(RoleFree)
	}
	newWorker.setRole(RoleStable)
	d.assignOrQueue(newWorker, newTask)
}

func (d *Dispatcher) cancelAndReplace(newWorker *Worker, newTask *Task) {
	if stable := d.pool.Stable(); stable != nil {
		d.tasksMu.Lock()
		var old *inflightTask
		for _, it := range d.inflightTasks {
			if it.worker.ID == stable.ID {
				old = it
				break
			}
		}
		d.tasksMu.Unlock()
		if old != nil {
			d.metrics.Counter(metrics.TasksCancelledTotal).Add(1)
			d.reportTerminal(old, failureResponse(old.task.Seq, ErrorKindCancelled.String()))
			go func() {
				interruptCtx, cancel := context.WithTimeout(d.ctx, d.router.CancelTimeout())
				defer cancel()
				_ = old.worker.Proxy.Interrupt(interruptCtx)
			}()
		}
		stable.setRole(RoleFree)
	}
	newWorker.setRole(RoleStable)
	d.assignOrQueue(newWorker, newTask)
}

// assignOrQueue assigns t to w if w is idle, otherwise queues t behind w's
// current task. selectWorker's last-resort tier (router.go) can hand back a
// busy worker once the pool is saturated; force-assigning into it would put
// two commands in flight on the same worker at once, violating §4.3/§4.4's
// one-outstanding-command-per-worker invariant.
func (d *Dispatcher) assignOrQueue(w *Worker, t *Task) {
	w.mu.Lock()
	idle := w.State == StateIdle
	w.mu.Unlock()
	if idle {
		d.assign(w, t)
		return
	}
	w.PendingQueue.Push(t)
}

// handleWorkerCrash implements §4.5's worker-crash recovery: promote a
// reserve if the dead worker was stable, otherwise just reap it; if no
// promotion is possible with pool_max reached and all slots dead, raise a
// dispatcher-level Fatal.
func (d *Dispatcher) handleWorkerCrash(w *Worker, t *Task) {
	wasStable := w.Role == RoleStable
	for _, queued := range d.pool.Reap(w.ID) {
		d.metrics.Counter(metrics.TasksFailedTotal).Add(1)
		d.events <- failureResponse(queued.Seq, ErrorKindWorkerFailed.String())
	}

	if !wasStable {
		return
	}

	if _, err := d.router.promoteStable(d.ctx); err != nil {
		if d.pool.Len() == 0 {
			d.fatal.Store(true)
			select {
			case d.fatalCh <- fmt.Errorf("%w: all workers dead, pool_max reached", ErrResourceExhausted):
			default:
			}
		}
		return
	}

	go func() {
		d.mu.Lock()
		target := d.lastLocation
		d.mu.Unlock()
		if stable := d.pool.Stable(); stable != nil {
			_ = d.repositionReserves(d.ctx, stable, target)
		}
	}()
}
