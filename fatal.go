package rrdispatch

import (
	"context"
	"sync"
)

// fatalForwarder consumes dispatcher-level fatal errors (in) and, on the
// first one, cancels the dispatcher context and forwards exactly one error
// to the outward errors channel (out). §4.5 Worker crash: "If no promotion
// is possible and pool_max is reached with all slots dead, emit a
// dispatcher-level Fatal and initiate shutdown" — this is the component
// that turns that single internal signal into exactly one outward Fatal and
// a context cancellation, adapted from the teacher's errorForwarder
// (first-error-wins, detached sender when the reader isn't ready yet).
type fatalForwarder struct {
	in      <-chan error
	out     chan<- error
	closeCh <-chan struct{}
	cancel  context.CancelFunc
	sendWG  *sync.WaitGroup
}

func newFatalForwarder(
	in <-chan error, out chan<- error, closeCh <-chan struct{}, cancel context.CancelFunc, sendWG *sync.WaitGroup,
) *fatalForwarder {
	return &fatalForwarder{in: in, out: out, closeCh: closeCh, cancel: cancel, sendWG: sendWG}
}

func (f *fatalForwarder) run() {
	forwardedFirst := false
	for {
		select {
		case e := <-f.in:
			f.cancel()
			if !forwardedFirst {
				forwardedFirst = true
				select {
				case f.out <- e:
				default:
					f.sendWG.Add(1)
					go func(err error) {
						defer f.sendWG.Done()
						select {
						case f.out <- err:
						case <-f.closeCh:
						}
					}(e)
				}
			}
		case <-f.closeCh:
			for {
				select {
				case <-f.in:
				default:
					return
				}
			}
		}
	}
}
