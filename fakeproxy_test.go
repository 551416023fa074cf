package rrdispatch

import (
	"context"
	"time"

	"github.com/metacraft-labs/rr-dispatcher/logging"
)

// fakeProxy is a deterministic, in-memory WorkerProxy used across tests so
// the pool/router/dispatcher tests never spawn a real rr process.
type fakeProxy struct {
	pid       int
	startErr  error
	events    chan WorkerEvent
	outcomes  chan WorkerOutcome
	dead      chan struct{}
	sent      []string
	interrupt func(context.Context) error
}

func newFakeProxy() *fakeProxy {
	return &fakeProxy{
		pid:      1000,
		events:   make(chan WorkerEvent, 16),
		outcomes: make(chan WorkerOutcome, 16),
		dead:     make(chan struct{}),
	}
}

func (f *fakeProxy) Start(ctx context.Context, tracePath string, startTimeout time.Duration) error {
	return f.startErr
}

func (f *fakeProxy) Send(cmd string) error {
	f.sent = append(f.sent, cmd)
	return nil
}

func (f *fakeProxy) Events() <-chan WorkerEvent     { return f.events }
func (f *fakeProxy) Outcomes() <-chan WorkerOutcome { return f.outcomes }
func (f *fakeProxy) Dead() <-chan struct{}          { return f.dead }
func (f *fakeProxy) PID() int                       { return f.pid }

func (f *fakeProxy) Interrupt(ctx context.Context) error {
	if f.interrupt != nil {
		return f.interrupt(ctx)
	}
	return nil
}

func (f *fakeProxy) Terminate(killTimeout time.Duration) {
	select {
	case <-f.dead:
	default:
		close(f.dead)
	}
}

// succeed completes the in-flight command with a plain OK outcome.
func (f *fakeProxy) succeed() {
	f.outcomes <- WorkerOutcome{OK: true}
}

// fakeFactory returns a workerFactory that hands out proxies in order,
// spawning a fresh plain fakeProxy once the given ones are exhausted.
func fakeFactory(proxies ...*fakeProxy) workerFactory {
	i := 0
	return func(_ logging.Logger) WorkerProxy {
		if i < len(proxies) {
			p := proxies[i]
			i++
			return p
		}
		return newFakeProxy()
	}
}
