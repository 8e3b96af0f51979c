package isolate

import (
	"sync"

	"github.com/dop251/goja"
)

// HostFunc builds a global for one worker. It runs on the worker's goroutine
// while the script boots. The value may keep loop and settle promises later
// from any goroutine by scheduling the settlement with loop.RunOnLoop.
type HostFunc func(vm *goja.Runtime, loop *Loop) any

// Loop queues jobs for a worker's runtime goroutine. Jobs run in submission
// order, between evaluations or while an evaluation waits on a promise.
type Loop struct {
	mu      sync.Mutex
	pending []func(*goja.Runtime)
	closed  bool
	wake    chan struct{}
}

func newLoop() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// RunOnLoop schedules fn on the runtime goroutine. It never blocks and reports
// false once the worker is gone.
func (l *Loop) RunOnLoop(fn func(*goja.Runtime)) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.pending = append(l.pending, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

func (l *Loop) take() []func(*goja.Runtime) {
	l.mu.Lock()
	defer l.mu.Unlock()
	jobs := l.pending
	l.pending = nil
	return jobs
}

func (l *Loop) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.pending = nil
}
