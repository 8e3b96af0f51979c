// Package pool schedules tasks onto a bounded, lazily grown set of workers
// created by a backend strategy.
//
// Every pool mutation happens under one mutex in response to a discrete event:
// a submission, a spawn outcome, or an event from a worker. Callbacks, hooks
// and worker sends run after the mutex is released. Each worker has exactly one
// event pump goroutine, so callbacks for one worker are delivered in the order
// that worker completed its tasks.
package pool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/seantiz/crucible/internal/backend"
	"github.com/seantiz/crucible/internal/model"
)

// terminateTimeout bounds the teardown of a worker the pool retires on its own.
const terminateTimeout = 5 * time.Second

// Task is one unit of work.
type Task struct {
	// ID identifies the task in results and hooks. Generated when empty.
	ID       string
	Payload  json.RawMessage
	Callback Callback
}

// Result is delivered exactly once to a task's callback. When Err is non-nil
// Value is nil.
type Result struct {
	TaskID string
	// WorkerID is empty when the task never reached a worker.
	WorkerID     string
	Value        json.RawMessage
	Err          error
	DispatchedAt time.Time
	CompletedAt  time.Time
}

// Callback receives a task's result. It runs on a pool goroutine and must not
// block for long.
type Callback func(Result)

// Hooks observe task progress. Both run outside the pool lock.
type Hooks struct {
	// OnDispatch is called right before a task is sent to a worker.
	OnDispatch func(taskID, workerID string)

	// OnLog is called for each log line a worker emits while running a task.
	OnLog func(taskID, line string)
}

// Config configures a Pool.
type Config struct {
	// Boot describes what each worker runs. Required.
	Boot backend.BootSpec

	// MaxWorkers caps live plus spawning workers. Zero means runtime.NumCPU().
	MaxWorkers int

	// Strategy selects the backend. Empty means backend.DefaultKind.
	Strategy backend.Kind

	// Options is passed verbatim to the strategy.
	Options any

	// OnCreate runs after a worker is created and before it is used. An error
	// fails the spawn.
	OnCreate func(backend.Worker) error

	// ReadyTimeout fails a spawn whose worker has not signalled readiness in
	// time. It counts from the spawn request, so Create and OnCreate are
	// included. Zero waits indefinitely.
	ReadyTimeout time.Duration

	Hooks  Hooks
	Logger *slog.Logger

	// Debug verifies pool bookkeeping after every mutation and panics on a
	// violation.
	Debug bool
}

// Stats is a snapshot of pool state.
type Stats struct {
	Strategy backend.Kind `json:"strategy"`
	Max      int          `json:"max_workers"`
	Workers  int          `json:"workers"`
	Spawning int          `json:"spawning"`
	Idle     int          `json:"idle"`
	Busy     int          `json:"busy"`
	Queued   int          `json:"queued"`
	InFlight int          `json:"in_flight"`
	Closed   bool         `json:"closed"`
}

// Pool distributes tasks across workers.
type Pool struct {
	cfg      Config
	strategy backend.Strategy
	label    string
	logger   *slog.Logger

	// ctx is canceled by Close to abort spawns in progress.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	handles  map[string]*handle
	idle     []*handle
	spawning int
	queue    taskQueue
	inflight callbackRegistry
	closed   bool

	// outstanding counts accepted tasks whose callback has not returned yet.
	outstanding int
	// quiet is closed while outstanding is zero.
	quiet       chan struct{}
	quietClosed bool
}

// New validates cfg, resolves its strategy through reg and returns an empty
// pool. Workers are created on demand.
func New(reg *backend.Registry, cfg Config) (*Pool, error) {
	if reg == nil {
		return nil, errors.New("pool: nil strategy registry")
	}
	if cfg.MaxWorkers < 0 {
		return nil, fmt.Errorf("pool: max workers must not be negative, got %d", cfg.MaxWorkers)
	}
	if cfg.MaxWorkers == 0 {
		cfg.MaxWorkers = runtime.NumCPU()
	}
	if cfg.Strategy == "" {
		cfg.Strategy = backend.DefaultKind
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if err := cfg.Boot.Validate(); err != nil {
		return nil, fmt.Errorf("pool: %w", err)
	}

	strategy, err := reg.Resolve(cfg.Strategy)
	if err != nil {
		return nil, fmt.Errorf("pool: %w", err)
	}
	if mode := cfg.Boot.Mode(); !strategy.Capabilities().Supports(mode) {
		return nil, fmt.Errorf("pool: %s strategy, %s boot: %w", cfg.Strategy, mode, backend.ErrUnsupportedBoot)
	}

	label := string(cfg.Strategy)
	initMetrics(label)

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		cfg:      cfg,
		strategy: strategy,
		label:    label,
		logger:   cfg.Logger.With("component", "pool", "strategy", label),
		ctx:      ctx,
		cancel:   cancel,
		handles:  make(map[string]*handle),
		inflight: newCallbackRegistry(),
		quiet:    make(chan struct{}),
	}
	close(p.quiet)
	p.quietClosed = true
	return p, nil
}

// Strategy reports the backend kind the pool runs on.
func (p *Pool) Strategy() backend.Kind {
	return p.cfg.Strategy
}

// MaxWorkers reports the resolved worker cap.
func (p *Pool) MaxWorkers() int {
	return p.cfg.MaxWorkers
}

// Submit schedules payload and returns the generated task ID. It never blocks
// on a worker; every outcome, including rejection, arrives through cb.
func (p *Pool) Submit(payload json.RawMessage, cb Callback) string {
	return p.SubmitTask(Task{Payload: payload, Callback: cb})
}

// SubmitTask schedules t and returns its ID. It does not wait on hooks, the
// strategy or the worker.
func (p *Pool) SubmitTask(t Task) string {
	if t.ID == "" {
		t.ID = model.NewID()
	}
	task := &t

	var fx effects
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		tasksTotal.WithLabelValues(p.label, outcomeRejected).Inc()
		deliver(task, Result{TaskID: task.ID, Err: ErrPoolClosed, CompletedAt: time.Now()})
		return task.ID
	}
	p.outstanding++
	p.acquire(task, &fx)
	p.settle()
	async := len(fx) > 0
	if async {
		// Registered under the lock so Close cannot miss it.
		p.wg.Add(1)
	}
	p.mu.Unlock()

	// Dispatch hooks and the send run off the caller's goroutine.
	if async {
		go func() {
			defer p.wg.Done()
			fx.run()
		}()
	}
	return task.ID
}

// Run submits payload and waits for its result. If ctx ends first Run returns
// ctx.Err(); the task itself keeps running in the pool.
func (p *Pool) Run(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	done := make(chan Result, 1)
	p.Submit(payload, func(r Result) { done <- r })

	select {
	case r := <-done:
		return r.Value, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stats returns a snapshot of the pool.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{
		Strategy: p.cfg.Strategy,
		Max:      p.cfg.MaxWorkers,
		Workers:  len(p.handles),
		Spawning: p.spawning,
		Idle:     len(p.idle),
		Queued:   p.queue.len(),
		InFlight: p.inflight.len(),
		Closed:   p.closed,
	}
	for _, h := range p.handles {
		if h.state == stateBusy {
			s.Busy++
		}
	}
	return s
}

// Drain blocks until every accepted task has completed and its callback has
// returned.
func (p *Pool) Drain(ctx context.Context) error {
	p.mu.Lock()
	quiet := p.quiet
	p.mu.Unlock()

	select {
	case <-quiet:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close rejects every queued, pending and in-flight task with ErrPoolClosed,
// terminates all workers and waits for the pool's goroutines to finish. It is
// safe to call more than once.
func (p *Pool) Close(ctx context.Context) error {
	var fx effects

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.cancel()

	for _, t := range p.queue.drain() {
		p.reject(t, ErrPoolClosed, &fx)
	}
	var workers []backend.Worker
	for key, h := range p.handles {
		if h.pending != nil {
			p.reject(h.pending, ErrPoolClosed, &fx)
			h.pending = nil
		}
		if h.worker != nil {
			workers = append(workers, h.worker)
		}
		h.state = stateTerminated
		h.task = nil
		delete(p.handles, key)
	}
	for _, t := range p.inflight.drain() {
		p.reject(t, ErrPoolClosed, &fx)
	}
	p.idle = nil
	p.spawning = 0
	p.settle()
	p.mu.Unlock()

	fx.run()

	p.logger.Info("closing pool", "workers", len(workers))

	var g errgroup.Group
	for _, w := range workers {
		g.Go(func() error {
			return w.Terminate(ctx)
		})
	}
	err := g.Wait()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
	return err
}

// acquire assigns t to an idle worker, spawns a worker for it, or queues it.
func (p *Pool) acquire(t *Task, fx *effects) {
	if len(p.idle) > 0 {
		h := p.idle[0]
		p.idle = p.idle[1:]
		p.dispatch(h, t, fx)
		return
	}
	if len(p.handles) < p.cfg.MaxWorkers {
		p.spawn(t)
		return
	}
	p.queue.push(t)
}

// spawn registers a new handle carrying t as its pending task and starts
// creating the worker on its own goroutine.
func (p *Pool) spawn(t *Task) {
	h := &handle{
		key:        model.NewID(),
		state:      stateSpawning,
		pending:    t,
		spawnStart: time.Now(),
	}
	p.handles[h.key] = h
	p.spawning++
	p.wg.Go(func() { p.runSpawn(h) })
}

// refill spawns workers for queued tasks while capacity allows.
func (p *Pool) refill() {
	for p.queue.len() > 0 && len(p.handles) < p.cfg.MaxWorkers {
		p.spawn(p.queue.pop())
	}
}

// dispatch assigns t to h and schedules the send.
func (p *Pool) dispatch(h *handle, t *Task, fx *effects) {
	token := model.NewID()
	h.state = stateBusy
	h.token = token
	h.task = t
	h.dispatchedAt = time.Now()
	p.inflight.add(token, t)

	w := h.worker
	onDispatch := p.cfg.Hooks.OnDispatch
	fx.add(func() {
		if onDispatch != nil {
			onDispatch(t.ID, w.ID())
		}
		if err := w.Send(t.Payload); err != nil {
			p.sendFailed(h, token, err)
		}
	})
}

// next gives an idle-again handle the queue head, or parks it.
func (p *Pool) next(h *handle, fx *effects) {
	if t := p.queue.pop(); t != nil {
		p.dispatch(h, t, fx)
		return
	}
	h.state = stateIdle
	h.token = ""
	h.task = nil
	p.idle = append(p.idle, h)
}

func (p *Pool) runSpawn(h *handle) {
	w, err := p.strategy.Create(p.ctx, p.cfg.Boot, p.cfg.Options)
	if err != nil {
		p.spawnFailed(h, err)
		return
	}

	p.mu.Lock()
	if h.state == stateTerminated {
		p.mu.Unlock()
		p.retire(w)
		p.pump(h, w)
		return
	}
	h.worker = w
	p.mu.Unlock()

	if p.cfg.OnCreate != nil {
		if err := p.cfg.OnCreate(w); err != nil {
			p.spawnFailed(h, fmt.Errorf("on create: %w", err))
			p.retire(w)
			p.pump(h, w)
			return
		}
	}

	p.logger.Debug("worker created", "worker_id", w.ID())
	p.pump(h, w)
}

// pump is the single consumer of w's event stream. It runs until the stream
// is closed, routing events to h while h belongs to the pool.
func (p *Pool) pump(h *handle, w backend.Worker) {
	var timeout <-chan time.Time
	if p.cfg.ReadyTimeout > 0 {
		left := p.cfg.ReadyTimeout - time.Since(h.spawnStart)
		if left <= 0 {
			p.readyTimedOut(h, w)
		} else {
			timer := time.NewTimer(left)
			defer timer.Stop()
			timeout = timer.C
		}
	}

	events := w.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				p.exited(h, nil, true)
				return
			}
			if ev.Kind == backend.EventReady {
				timeout = nil
			}
			p.handleEvent(h, ev)
		case <-timeout:
			timeout = nil
			p.readyTimedOut(h, w)
		}
	}
}

func (p *Pool) handleEvent(h *handle, ev backend.Event) {
	switch ev.Kind {
	case backend.EventReady:
		p.ready(h)
	case backend.EventResult:
		p.completed(h, ev.Result, nil)
	case backend.EventFault:
		err := ev.Err
		if err == nil {
			err = errors.New("worker reported a fault without an error")
		}
		p.completed(h, nil, err)
	case backend.EventLog:
		p.logLine(h, ev.Line)
	case backend.EventExit:
		p.exited(h, ev.Err, false)
	default:
		p.mu.Lock()
		p.violation(h, "unknown event kind", "kind", int(ev.Kind))
		p.mu.Unlock()
	}
}

func (p *Pool) ready(h *handle) {
	var fx effects

	p.mu.Lock()
	switch h.state {
	case stateTerminated:
		p.mu.Unlock()
		return
	case stateSpawning:
	default:
		p.violation(h, "duplicate ready")
		p.mu.Unlock()
		return
	}

	p.spawning--
	spawnDuration.WithLabelValues(p.label).Observe(time.Since(h.spawnStart).Seconds())
	p.logger.Debug("worker ready", "worker_id", h.workerID())

	if t := h.pending; t != nil {
		h.pending = nil
		p.dispatch(h, t, &fx)
	} else {
		p.next(h, &fx)
	}
	p.settle()
	p.mu.Unlock()

	fx.run()
}

// completed handles a result or fault for h's in-flight task.
func (p *Pool) completed(h *handle, value json.RawMessage, fault error) {
	var fx effects

	p.mu.Lock()
	switch h.state {
	case stateTerminated:
		p.mu.Unlock()
		return
	case stateSpawning:
		p.violation(h, "completion before ready")
		p.mu.Unlock()
		return
	case stateIdle:
		p.violation(h, "completion without a task in flight")
		p.mu.Unlock()
		return
	}

	t, ok := p.inflight.take(h.token)
	if !ok {
		p.violation(h, "completion for an unknown token", "token", h.token)
		p.mu.Unlock()
		return
	}

	res := Result{
		TaskID:       t.ID,
		WorkerID:     h.workerID(),
		DispatchedAt: h.dispatchedAt,
		CompletedAt:  time.Now(),
	}
	outcome := outcomeCompleted
	if fault != nil {
		res.Err = taskFault(fault)
		outcome = outcomeFaulted
	} else {
		res.Value = value
	}
	p.next(h, &fx)
	p.settle()
	p.mu.Unlock()

	taskDuration.WithLabelValues(p.label).Observe(res.CompletedAt.Sub(res.DispatchedAt).Seconds())
	tasksTotal.WithLabelValues(p.label, outcome).Inc()

	fx.run()
	p.finish(t, res)
}

func (p *Pool) logLine(h *handle, line string) {
	p.mu.Lock()
	switch h.state {
	case stateSpawning:
		p.violation(h, "log before ready")
		p.mu.Unlock()
		return
	case stateBusy:
	default:
		p.mu.Unlock()
		p.logger.Debug("dropping log line without a task in flight", "worker_id", h.workerID())
		return
	}
	taskID := h.task.ID
	p.mu.Unlock()

	if p.cfg.Hooks.OnLog != nil {
		p.cfg.Hooks.OnLog(taskID, line)
	}
}

// exited removes h after its worker's execution context ended. closed is true
// when the event stream closed without a preceding exit event.
func (p *Pool) exited(h *handle, cause error, closed bool) {
	var fx effects

	p.mu.Lock()
	if h.state == stateTerminated {
		p.mu.Unlock()
		return
	}
	if cause == nil && closed {
		cause = errors.New("event stream closed")
	}

	switch h.state {
	case stateSpawning:
		if cause == nil {
			cause = errors.New("worker exited before ready")
		}
		p.failSpawn(h, cause, &fx)
	case stateBusy:
		t, ok := p.inflight.take(h.token)
		p.remove(h)
		if ok {
			err := ErrWorkerExited
			if cause != nil {
				err = fmt.Errorf("%w: %v", ErrWorkerExited, cause)
			}
			p.logger.Warn("worker exited while busy", "worker_id", h.workerID(), "task_id", t.ID, "error", cause)
			res := Result{
				TaskID:       t.ID,
				WorkerID:     h.workerID(),
				Err:          err,
				DispatchedAt: h.dispatchedAt,
				CompletedAt:  time.Now(),
			}
			tasksTotal.WithLabelValues(p.label, outcomeFaulted).Inc()
			fx.add(func() { p.finish(t, res) })
		}
		p.refill()
	case stateIdle:
		p.logger.Info("idle worker exited", "worker_id", h.workerID(), "error", cause)
		p.remove(h)
		p.refill()
	}
	p.settle()
	p.mu.Unlock()

	fx.run()
}

func (p *Pool) readyTimedOut(h *handle, w backend.Worker) {
	var fx effects

	p.mu.Lock()
	if h.state != stateSpawning {
		p.mu.Unlock()
		return
	}
	p.failSpawn(h, ErrReadyTimeout, &fx)
	p.settle()
	p.mu.Unlock()

	fx.run()
	p.retire(w)
}

// spawnFailed handles a strategy or OnCreate error.
func (p *Pool) spawnFailed(h *handle, err error) {
	var fx effects

	p.mu.Lock()
	if h.state != stateSpawning {
		p.mu.Unlock()
		return
	}
	p.failSpawn(h, err, &fx)
	p.settle()
	p.mu.Unlock()

	fx.run()
}

// failSpawn discards a spawning handle and fails its pending task.
func (p *Pool) failSpawn(h *handle, cause error, fx *effects) {
	p.spawning--
	spawnFailures.WithLabelValues(p.label).Inc()
	p.logger.Warn("worker spawn failed", "worker_id", h.workerID(), "error", cause)

	t := h.pending
	h.pending = nil
	p.remove(h)

	if t != nil {
		res := Result{
			TaskID:      t.ID,
			Err:         &SpawnError{WorkerID: h.workerID(), Err: cause},
			CompletedAt: time.Now(),
		}
		tasksTotal.WithLabelValues(p.label, outcomeFaulted).Inc()
		fx.add(func() { p.finish(t, res) })
	}
	p.refill()
}

// sendFailed fails the task whose send was rejected and retires the worker.
func (p *Pool) sendFailed(h *handle, token string, err error) {
	var fx effects

	p.mu.Lock()
	t, ok := p.inflight.take(token)
	if !ok || h.state == stateTerminated {
		p.mu.Unlock()
		return
	}
	p.logger.Warn("send to worker failed", "worker_id", h.workerID(), "task_id", t.ID, "error", err)
	w := h.worker
	p.remove(h)
	res := Result{
		TaskID:       t.ID,
		WorkerID:     h.workerID(),
		Err:          taskFault(fmt.Errorf("send: %w", err)),
		DispatchedAt: h.dispatchedAt,
		CompletedAt:  time.Now(),
	}
	tasksTotal.WithLabelValues(p.label, outcomeFaulted).Inc()
	p.refill()
	p.settle()
	p.mu.Unlock()

	fx.run()
	p.finish(t, res)
	p.retire(w)
}

// remove takes h out of the pool's bookkeeping.
func (p *Pool) remove(h *handle) {
	if h.state == stateIdle {
		for i, ih := range p.idle {
			if ih == h {
				p.idle = append(p.idle[:i], p.idle[i+1:]...)
				break
			}
		}
	}
	h.state = stateTerminated
	h.token = ""
	h.task = nil
	delete(p.handles, h.key)
}

// retire terminates a worker the pool no longer tracks. Its pump keeps
// draining the event stream until it closes.
func (p *Pool) retire(w backend.Worker) {
	p.wg.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), terminateTimeout)
		defer cancel()
		if err := w.Terminate(ctx); err != nil {
			p.logger.Warn("terminate worker", "worker_id", w.ID(), "error", err)
		}
	})
}

func (p *Pool) reject(t *Task, err error, fx *effects) {
	res := Result{TaskID: t.ID, Err: err, CompletedAt: time.Now()}
	tasksTotal.WithLabelValues(p.label, outcomeRejected).Inc()
	fx.add(func() { p.finish(t, res) })
}

// finish delivers res and releases the task's slot in the outstanding count.
func (p *Pool) finish(t *Task, res Result) {
	deliver(t, res)

	p.mu.Lock()
	p.outstanding--
	p.updateQuiet()
	p.mu.Unlock()
}

// violation records a worker event that breaks the worker protocol. The event
// is dropped.
func (p *Pool) violation(h *handle, msg string, args ...any) {
	protocolViolations.WithLabelValues(p.label).Inc()
	attrs := append([]any{"worker_id", h.workerID(), "state", h.state.String()}, args...)
	p.logger.Warn("protocol violation: "+msg, attrs...)
}

// settle publishes gauges, signals Drain waiters and, in debug mode, checks
// bookkeeping. Called with p.mu held at the end of every mutation.
func (p *Pool) settle() {
	workersGauge.WithLabelValues(p.label).Set(float64(len(p.handles)))
	busyGauge.WithLabelValues(p.label).Set(float64(p.inflight.len()))
	queueDepth.WithLabelValues(p.label).Set(float64(p.queue.len()))

	p.updateQuiet()

	if p.cfg.Debug {
		p.checkInvariants()
	}
}

func (p *Pool) updateQuiet() {
	quiet := p.outstanding == 0
	switch {
	case quiet && !p.quietClosed:
		close(p.quiet)
		p.quietClosed = true
	case !quiet && p.quietClosed:
		p.quiet = make(chan struct{})
		p.quietClosed = false
	}
}

// checkInvariants panics when pool bookkeeping is inconsistent.
func (p *Pool) checkInvariants() {
	if len(p.handles) > p.cfg.MaxWorkers {
		panic(fmt.Sprintf("pool: %d workers exceed max %d", len(p.handles), p.cfg.MaxWorkers))
	}

	var spawning, idle, busy int
	for _, h := range p.handles {
		switch h.state {
		case stateSpawning:
			spawning++
			if h.task != nil {
				panic("pool: spawning worker has a task in flight")
			}
		case stateIdle:
			idle++
			if h.task != nil || h.pending != nil {
				panic("pool: idle worker holds a task")
			}
		case stateBusy:
			busy++
			if h.task == nil || !p.inflight.has(h.token) {
				panic("pool: busy worker without a registered task")
			}
			if h.pending != nil {
				panic("pool: busy worker still holds a pending task")
			}
		default:
			panic(fmt.Sprintf("pool: tracked worker in state %s", h.state))
		}
	}

	if spawning != p.spawning {
		panic(fmt.Sprintf("pool: spawning count %d, tracked %d", p.spawning, spawning))
	}
	if idle != len(p.idle) {
		panic(fmt.Sprintf("pool: %d idle workers, idle list has %d", idle, len(p.idle)))
	}
	if busy != p.inflight.len() {
		panic(fmt.Sprintf("pool: %d busy workers, %d tasks in flight", busy, p.inflight.len()))
	}
	if p.queue.len() > 0 && idle > 0 {
		panic("pool: tasks queued while workers are idle")
	}
	if p.queue.len() > 0 && len(p.handles) < p.cfg.MaxWorkers {
		panic("pool: tasks queued below capacity")
	}

	held := p.queue.len() + p.inflight.len()
	for _, h := range p.handles {
		if h.pending != nil {
			held++
		}
	}
	if held > p.outstanding {
		panic(fmt.Sprintf("pool: %d tasks held, %d outstanding", held, p.outstanding))
	}
}

func deliver(t *Task, res Result) {
	if t.Callback != nil {
		t.Callback(res)
	}
}

// effects are actions collected under the pool lock and run after it is
// released, in order.
type effects []func()

func (fx *effects) add(f func()) {
	*fx = append(*fx, f)
}

func (fx effects) run() {
	for _, f := range fx {
		f()
	}
}
