package container

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Future is the pending outcome of a batch of units.
type Future struct {
	done chan struct{}
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) complete(err error) {
	f.err = err
	close(f.done)
}

// Wait blocks until every unit of the batch has finished and returns the
// first error captured, if any.
func (f *Future) Wait() error {
	<-f.done
	return f.err
}

// Done is closed once the batch has finished.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Executor runs a batch of independent units. Every unit runs to completion;
// a failing unit never cancels its siblings.
type Executor interface {
	Execute(units []func() error) *Future
}

// ConcurrentExecutor runs every unit on its own goroutine.
type ConcurrentExecutor struct{}

func (ConcurrentExecutor) Execute(units []func() error) *Future {
	f := newFuture()
	var g errgroup.Group
	for _, unit := range units {
		g.Go(unit)
	}
	go func() {
		f.complete(g.Wait())
	}()
	return f
}

// InlineExecutor runs units one after another on the calling goroutine.
type InlineExecutor struct{}

func (InlineExecutor) Execute(units []func() error) *Future {
	f := newFuture()
	var first error
	for _, unit := range units {
		if err := unit(); err != nil && first == nil {
			first = err
		}
	}
	f.complete(first)
	return f
}

// DefaultExecutor picks InlineExecutor for single-threaded mode or when the
// process has fewer than two CPUs.
func DefaultExecutor(singleThreaded bool) Executor {
	if singleThreaded || runtime.NumCPU() < 2 {
		return InlineExecutor{}
	}
	return ConcurrentExecutor{}
}
