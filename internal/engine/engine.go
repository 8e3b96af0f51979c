package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/seantiz/crucible/internal/backend"
	"github.com/seantiz/crucible/internal/model"
	"github.com/seantiz/crucible/internal/pool"
	"github.com/seantiz/crucible/internal/store"
)

// ErrInvalidPayload is returned by Submit when the task payload is not valid JSON.
var ErrInvalidPayload = errors.New("task payload must be valid JSON")

// Engine runs tasks on a pool and keeps the ledger in step with them.
type Engine struct {
	store  store.Store
	pool   *pool.Pool
	broker *LogBroker
	logger *slog.Logger

	// draining is set once Shutdown starts.
	draining atomic.Bool
}

// New creates the pool described by cfg and an engine that records its tasks
// in s. Hooks already present in cfg are still called after the engine's own.
func New(s store.Store, reg *backend.Registry, cfg pool.Config, logger *slog.Logger) (*Engine, error) {
	if s == nil {
		return nil, errors.New("engine: nil store")
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	e := &Engine{
		store:  s,
		broker: NewLogBroker(),
		logger: logger.With("component", "engine"),
	}

	next := cfg.Hooks
	cfg.Hooks = pool.Hooks{
		OnDispatch: func(taskID, workerID string) {
			e.dispatched(taskID, workerID)
			if next.OnDispatch != nil {
				next.OnDispatch(taskID, workerID)
			}
		},
		OnLog: func(taskID, line string) {
			e.logLine(taskID, line)
			if next.OnLog != nil {
				next.OnLog(taskID, line)
			}
		},
	}
	if cfg.Logger == nil {
		cfg.Logger = logger
	}

	p, err := pool.New(reg, cfg)
	if err != nil {
		return nil, err
	}
	e.pool = p
	return e, nil
}

// Pool returns the pool the engine submits to.
func (e *Engine) Pool() *pool.Pool {
	return e.pool
}

// Broker returns the engine's log broker for SSE subscription.
func (e *Engine) Broker() *LogBroker {
	return e.broker
}

// Accepting reports whether the engine still takes new work: Shutdown has not
// started and the pool is open.
func (e *Engine) Accepting() bool {
	return !e.draining.Load() && !e.pool.Stats().Closed
}

// Submit records t as queued and hands it to the pool. ID, Status, Strategy
// and CreatedAt are filled in on t. The outcome is written to the ledger when
// the pool delivers it.
func (e *Engine) Submit(ctx context.Context, t *model.Task) error {
	return e.submit(ctx, t, nil)
}

// Run submits t and waits for it to finish, returning the final ledger record.
// If ctx ends first the task keeps running and ctx.Err() is returned.
func (e *Engine) Run(ctx context.Context, t *model.Task) (*model.Task, error) {
	done := make(chan struct{})
	if err := e.submit(ctx, t, done); err != nil {
		return nil, err
	}

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return e.store.GetTask(ctx, t.ID)
}

func (e *Engine) submit(ctx context.Context, t *model.Task, done chan<- struct{}) error {
	if !json.Valid(t.Payload) {
		return ErrInvalidPayload
	}
	if t.ID == "" {
		t.ID = model.NewID()
	}
	t.Status = model.StatusQueued
	t.Strategy = string(e.pool.Strategy())
	t.CreatedAt = time.Now().UTC()

	if err := e.store.CreateTask(ctx, t); err != nil {
		return fmt.Errorf("create task: %w", err)
	}

	e.pool.SubmitTask(pool.Task{
		ID:      t.ID,
		Payload: t.Payload,
		Callback: func(r pool.Result) {
			e.complete(r)
			if done != nil {
				close(done)
			}
		},
	})
	return nil
}

// Shutdown waits for accepted tasks to finish, then closes the pool. Tasks
// still outstanding when ctx ends are failed with pool.ErrPoolClosed.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.draining.Store(true)
	drainErr := e.pool.Drain(ctx)
	if drainErr != nil {
		e.logger.Warn("drain interrupted, closing pool with tasks outstanding", "error", drainErr)
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return errors.Join(drainErr, e.pool.Close(closeCtx))
}

func (e *Engine) dispatched(taskID, workerID string) {
	err := e.store.UpdateTaskStatus(context.Background(), taskID, model.StatusRunning)
	if err != nil && !errors.Is(err, store.ErrInvalidTransition) {
		e.logger.Error("failed to transition to running", "task_id", taskID, "worker_id", workerID, "error", err)
	}
}

// logLine persists a line and publishes it to live subscribers. Lines that
// arrive after the task finished are dropped.
func (e *Engine) logLine(taskID, line string) {
	seq := e.broker.Publish(taskID, line)
	if seq < 0 {
		return
	}
	if err := e.store.InsertLogLine(context.Background(), taskID, seq, line); err != nil {
		e.logger.Error("failed to persist log line", "task_id", taskID, "seq", seq, "error", err)
	}
}

// complete writes the task outcome and closes its log stream.
func (e *Engine) complete(r pool.Result) {
	defer e.broker.Close(r.TaskID)

	finished := r.CompletedAt.UTC()
	if r.CompletedAt.IsZero() {
		finished = time.Now().UTC()
	}

	t := &model.Task{
		ID:         r.TaskID,
		Status:     model.StatusCompleted,
		WorkerID:   r.WorkerID,
		Result:     r.Value,
		FinishedAt: &finished,
	}
	if r.Err != nil {
		t.Status = model.StatusFailed
		t.Error = r.Err.Error()
	}
	if !r.DispatchedAt.IsZero() {
		started := r.DispatchedAt.UTC()
		dur := int(finished.Sub(started).Milliseconds())
		t.StartedAt = &started
		t.DurationMS = &dur
	}

	if err := e.store.UpdateTask(context.Background(), t); err != nil {
		e.logger.Error("failed to record task outcome", "task_id", r.TaskID, "status", t.Status, "error", err)
		return
	}
	e.logger.Debug("task finished", "task_id", r.TaskID, "worker_id", r.WorkerID, "status", t.Status)
}
