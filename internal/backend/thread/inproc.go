package thread

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/seantiz/crucible/internal/backend"
)

// inprocWorker runs a HandlerFunc on its own goroutine. The goroutine is the
// execution context: it signals readiness, then runs one task at a time.
type inprocWorker struct {
	id      string
	handler backend.HandlerFunc

	inbox  chan json.RawMessage
	events chan backend.Event
	busy   atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	closed atomic.Bool
	done   chan struct{}
}

func newInprocWorker(id string, h backend.HandlerFunc) *inprocWorker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &inprocWorker{
		id:      id,
		handler: h,
		inbox:   make(chan json.RawMessage, 1),
		events:  make(chan backend.Event, eventBuffer),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	inprocActive.Inc()
	go w.run()
	return w
}

func (w *inprocWorker) ID() string { return w.id }

func (w *inprocWorker) Events() <-chan backend.Event { return w.events }

// Send queues payload for the worker goroutine.
func (w *inprocWorker) Send(payload json.RawMessage) error {
	if w.closed.Load() {
		return backend.ErrWorkerClosed
	}
	if !w.busy.CompareAndSwap(false, true) {
		return backend.ErrWorkerBusy
	}
	w.inbox <- payload
	return nil
}

// Terminate cancels the handler context and waits for the goroutine to exit.
// A handler that ignores its context keeps running until it returns.
func (w *inprocWorker) Terminate(ctx context.Context) error {
	w.once.Do(func() {
		w.closed.Store(true)
		w.cancel()
	})
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("terminate worker %s: %w", w.id, ctx.Err())
	}
}

func (w *inprocWorker) run() {
	defer func() {
		inprocActive.Dec()
		select {
		case w.events <- backend.Event{Kind: backend.EventExit}:
		default:
		}
		close(w.events)
		close(w.done)
	}()

	if !w.emit(backend.Event{Kind: backend.EventReady}) {
		return
	}

	for {
		select {
		case <-w.ctx.Done():
			return
		case payload := <-w.inbox:
			result, err := w.execute(payload)
			w.busy.Store(false)
			if err != nil {
				if !w.emit(backend.Event{Kind: backend.EventFault, Err: err}) {
					return
				}
				continue
			}
			if !w.emit(backend.Event{Kind: backend.EventResult, Result: result}) {
				return
			}
		}
	}
}

// execute runs the handler, converting a panic into an error.
func (w *inprocWorker) execute(payload json.RawMessage) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	req := backend.Request{
		Payload: payload,
		Log: func(line string) {
			w.emit(backend.Event{Kind: backend.EventLog, Line: line})
		},
	}
	return w.handler(w.ctx, req)
}

// emit delivers ev unless the worker is being terminated.
func (w *inprocWorker) emit(ev backend.Event) bool {
	select {
	case w.events <- ev:
		return true
	case <-w.ctx.Done():
		return false
	}
}
