package rrdispatch

import "sync"

// lifecycleCoordinator sequences dispatcher shutdown. It is a direct
// adaptation of the teacher's lifecycleCoordinator: a small struct of
// closures plus a sync.Once so Close() is safe to call from multiple
// exit paths (intake EOF, shutdown control task, fatal error) and always
// runs the sequence exactly once.
type lifecycleCoordinator struct {
	cancel        func()
	inflight      *sync.WaitGroup
	terminatePool func()
	closeEvents   func()

	once sync.Once
}

func newLifecycleCoordinator(
	cancel func(),
	inflight *sync.WaitGroup,
	terminatePool func(),
	closeEvents func(),
) *lifecycleCoordinator {
	return &lifecycleCoordinator{
		cancel:        cancel,
		inflight:      inflight,
		terminatePool: terminatePool,
		closeEvents:   closeEvents,
	}
}

// Close executes the shutdown sequence exactly once:
//  1. cancel the dispatcher context, so no new tasks are accepted.
//  2. wait for in-flight task handling goroutines to finish.
//  3. terminate every worker in the pool (SIGTERM, then SIGKILL after
//     kill_timeout_ms).
//  4. close the outbound events channel, unblocking the client writer.
func (lc *lifecycleCoordinator) Close() {
	lc.once.Do(func() {
		if lc.cancel != nil {
			lc.cancel()
		}
		if lc.inflight != nil {
			lc.inflight.Wait()
		}
		if lc.terminatePool != nil {
			lc.terminatePool()
		}
		if lc.closeEvents != nil {
			lc.closeEvents()
		}
	})
}
