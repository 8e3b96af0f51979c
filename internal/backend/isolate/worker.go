package isolate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"

	"github.com/seantiz/crucible/internal/backend"
)

var errTerminated = errors.New("worker terminated")

// runtimeWorker evaluates tasks in a goja runtime. The runtime is created by
// startWorker and afterwards touched only by the run goroutine; Interrupt is
// the one call made from other goroutines.
type runtimeWorker struct {
	id     string
	prog   *goja.Program
	opts   Options
	logger *slog.Logger
	vm     *goja.Runtime
	loop   *Loop

	// logLine is the console sink for the task being evaluated.
	logLine func(string)

	inbox  chan json.RawMessage
	events chan backend.Event
	busy   atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	closed atomic.Bool
	done   chan struct{}
}

func startWorker(id string, prog *goja.Program, opts Options, logger *slog.Logger) *runtimeWorker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &runtimeWorker{
		id:      id,
		prog:    prog,
		opts:    opts,
		logger:  logger,
		vm:      goja.New(),
		loop:    newLoop(),
		logLine: func(string) {},
		inbox:   make(chan json.RawMessage, 1),
		events:  make(chan backend.Event, eventBuffer),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	runtimesActive.Inc()
	go w.run()
	return w
}

func (w *runtimeWorker) ID() string { return w.id }

func (w *runtimeWorker) Events() <-chan backend.Event { return w.events }

// Send queues payload for evaluation.
func (w *runtimeWorker) Send(payload json.RawMessage) error {
	if w.closed.Load() {
		return backend.ErrWorkerClosed
	}
	if !w.busy.CompareAndSwap(false, true) {
		return backend.ErrWorkerBusy
	}
	w.inbox <- payload
	return nil
}

// Terminate interrupts any running evaluation and waits for the runtime
// goroutine to exit.
func (w *runtimeWorker) Terminate(ctx context.Context) error {
	w.once.Do(func() {
		w.closed.Store(true)
		w.cancel()
		w.vm.Interrupt(errTerminated)
	})
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("terminate worker %s: %w", w.id, ctx.Err())
	}
}

func (w *runtimeWorker) run() {
	var exitErr error
	defer func() {
		runtimesActive.Dec()
		w.closed.Store(true)
		w.loop.close()
		select {
		case w.events <- backend.Event{Kind: backend.EventExit, Err: exitErr}:
		default:
		}
		close(w.events)
		close(w.done)
	}()

	entry, err := w.boot()
	if err != nil {
		w.logger.Warn("isolate boot failed", "error", err)
		exitErr = err
		return
	}

	if !w.emit(backend.Event{Kind: backend.EventReady}) {
		return
	}

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.loop.wake:
			// Late settlements of earlier tasks.
			w.runJobs()
		case payload := <-w.inbox:
			start := time.Now()
			result, err := w.evaluate(entry, payload)
			evalDuration.Observe(time.Since(start).Seconds())
			w.busy.Store(false)

			ev := backend.Event{Kind: backend.EventResult, Result: result}
			if err != nil {
				ev = backend.Event{Kind: backend.EventFault, Err: err}
			}
			if !w.emit(ev) {
				return
			}
		}
	}
}

// boot installs the injected globals, runs the script and resolves the entry
// function.
func (w *runtimeWorker) boot() (goja.Callable, error) {
	console := w.vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error"} {
		if err := console.Set(level, w.consoleFunc); err != nil {
			return nil, fmt.Errorf("install console.%s: %w", level, err)
		}
	}
	if err := w.vm.Set("console", console); err != nil {
		return nil, fmt.Errorf("install console: %w", err)
	}

	for name, v := range w.opts.Globals {
		if err := w.vm.Set(name, v); err != nil {
			return nil, fmt.Errorf("install global %q: %w", name, err)
		}
	}

	for name, build := range w.opts.Host {
		if err := w.vm.Set(name, build(w.vm, w.loop)); err != nil {
			return nil, fmt.Errorf("install host global %q: %w", name, err)
		}
	}

	if _, err := w.vm.RunProgram(w.prog); err != nil {
		return nil, fmt.Errorf("run script: %w", err)
	}

	name := w.opts.entry()
	fn, ok := goja.AssertFunction(w.vm.Get(name))
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrNoEntry)
	}
	return fn, nil
}

func (w *runtimeWorker) consoleFunc(call goja.FunctionCall) goja.Value {
	parts := make([]string, len(call.Arguments))
	for i, arg := range call.Arguments {
		parts[i] = arg.String()
	}
	w.logLine(strings.Join(parts, " "))
	return goja.Undefined()
}

// evaluate calls the entry function with the decoded payload and encodes
// what it returns.
func (w *runtimeWorker) evaluate(entry goja.Callable, payload json.RawMessage) (json.RawMessage, error) {
	w.logLine = func(line string) {
		w.emit(backend.Event{Kind: backend.EventLog, Line: line})
	}
	defer func() { w.logLine = func(string) {} }()

	expired, stop := w.armTimeout()
	defer stop()

	arg, err := w.decode(payload)
	if err != nil {
		return nil, err
	}

	ret, err := entry(goja.Undefined(), arg)
	if err != nil {
		return nil, w.describe(err)
	}

	if p, ok := ret.Export().(*goja.Promise); ok {
		if err := w.await(p, expired); err != nil {
			return nil, err
		}
		switch p.State() {
		case goja.PromiseStateFulfilled:
			ret = p.Result()
		case goja.PromiseStateRejected:
			return nil, fmt.Errorf("promise rejected: %s", p.Result().String())
		default:
			return nil, ErrPromisePending
		}
	}

	return w.encode(ret)
}

// await runs loop jobs until p settles. Without host globals nothing can
// settle p once the job queue is empty, so it returns at once.
func (w *runtimeWorker) await(p *goja.Promise, expired <-chan struct{}) error {
	if len(w.opts.Host) == 0 {
		return nil
	}
	for p.State() == goja.PromiseStatePending {
		select {
		case <-w.loop.wake:
			w.runJobs()
		case <-expired:
			return ErrTaskTimeout
		case <-w.ctx.Done():
			return errTerminated
		}
	}
	return nil
}

// runJobs runs every queued loop job on the runtime goroutine.
func (w *runtimeWorker) runJobs() {
	for _, job := range w.loop.take() {
		w.runJob(job)
	}
}

func (w *runtimeWorker) runJob(job func(*goja.Runtime)) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Warn("loop job panicked", "panic", r)
		}
	}()
	job(w.vm)
}

// armTimeout interrupts the runtime after TaskTimeout and closes expired. The
// returned func disarms it and leaves the runtime ready for the next task.
func (w *runtimeWorker) armTimeout() (expired <-chan struct{}, stop func()) {
	if w.opts.TaskTimeout <= 0 {
		return nil, func() {}
	}

	fired := make(chan struct{})
	timer := time.AfterFunc(w.opts.TaskTimeout, func() {
		defer close(fired)
		w.vm.Interrupt(ErrTaskTimeout)
	})
	return fired, func() {
		if !timer.Stop() {
			<-fired
		}
		if w.ctx.Err() == nil {
			w.vm.ClearInterrupt()
		}
	}
}

func (w *runtimeWorker) decode(payload json.RawMessage) (goja.Value, error) {
	if len(payload) == 0 {
		return goja.Undefined(), nil
	}
	parse, _ := goja.AssertFunction(w.vm.Get("JSON").ToObject(w.vm).Get("parse"))
	v, err := parse(goja.Undefined(), w.vm.ToValue(string(payload)))
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", w.describe(err))
	}
	return v, nil
}

func (w *runtimeWorker) encode(v goja.Value) (json.RawMessage, error) {
	stringify, _ := goja.AssertFunction(w.vm.Get("JSON").ToObject(w.vm).Get("stringify"))
	out, err := stringify(goja.Undefined(), v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", w.describe(err))
	}
	if goja.IsUndefined(out) {
		return json.RawMessage("null"), nil
	}
	return json.RawMessage(out.String()), nil
}

// describe turns a goja error into a task fault.
func (w *runtimeWorker) describe(err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if cause, ok := interrupted.Value().(error); ok {
			return cause
		}
		return fmt.Errorf("interrupted: %v", interrupted.Value())
	}

	var ex *goja.Exception
	if errors.As(err, &ex) && ex.Value() != nil {
		return fmt.Errorf("uncaught exception: %s", ex.Value().String())
	}
	return err
}

// emit delivers ev unless the worker is being terminated.
func (w *runtimeWorker) emit(ev backend.Event) bool {
	select {
	case w.events <- ev:
		return true
	case <-w.ctx.Done():
		return false
	}
}
