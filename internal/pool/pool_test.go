package pool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seantiz/crucible/internal/backend"
	"github.com/seantiz/crucible/internal/backend/isolate"
	"github.com/seantiz/crucible/internal/backend/thread"
)

func testRegistry() *backend.Registry {
	reg := backend.NewRegistry()
	reg.Register(thread.New(nil))
	reg.Register(isolate.New(nil))
	return reg
}

// newHandlerPool builds a native-thread pool running h in-process and counts
// created workers.
func newHandlerPool(t *testing.T, max int, h backend.HandlerFunc) (*Pool, *atomic.Int32) {
	t.Helper()
	var created atomic.Int32
	p, err := New(testRegistry(), Config{
		Boot:       backend.BootSpec{Handler: h},
		MaxWorkers: max,
		OnCreate: func(backend.Worker) error {
			created.Add(1)
			return nil
		},
		Debug: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = p.Close(ctx)
	})
	return p, &created
}

func echo(_ context.Context, req backend.Request) (json.RawMessage, error) {
	return req.Payload, nil
}

func TestNewValidation(t *testing.T) {
	reg := testRegistry()
	handler := backend.BootSpec{Handler: echo}

	_, err := New(nil, Config{Boot: handler})
	assert.Error(t, err)

	_, err = New(reg, Config{Boot: handler, MaxWorkers: -1})
	assert.Error(t, err)

	_, err = New(reg, Config{})
	assert.Error(t, err, "empty boot spec")

	_, err = New(reg, Config{Boot: handler, Strategy: "vm"})
	assert.ErrorIs(t, err, backend.ErrUnknownStrategy)

	_, err = New(reg, Config{Boot: handler, Strategy: backend.KindIsolate})
	assert.ErrorIs(t, err, backend.ErrUnsupportedBoot)
}

func TestNewDefaults(t *testing.T) {
	p, err := New(testRegistry(), Config{Boot: backend.BootSpec{Handler: echo}})
	require.NoError(t, err)
	defer p.Close(context.Background())

	assert.Equal(t, backend.KindThread, p.Strategy())
	assert.Positive(t, p.MaxWorkers())
	assert.Equal(t, Stats{Strategy: backend.KindThread, Max: p.MaxWorkers()}, p.Stats())
}

// One worker, three tasks back to back: a single spawn and in-order results.
func TestSingleWorkerSequential(t *testing.T) {
	p, created := newHandlerPool(t, 1, echo)
	sink := newResultSink()

	ids := []string{
		p.Submit(json.RawMessage(`1`), sink.callback),
		p.Submit(json.RawMessage(`2`), sink.callback),
		p.Submit(json.RawMessage(`3`), sink.callback),
	}

	for i, id := range ids {
		r := sink.next(t)
		require.NoError(t, r.Err)
		assert.Equal(t, id, r.TaskID)
		assert.Equal(t, fmt.Sprint(i+1), string(r.Value))
		assert.NotEmpty(t, r.WorkerID)
	}
	assert.EqualValues(t, 1, created.Load())
}

// Two concurrent tasks with two slots get two workers.
func TestConcurrentTasksSpawnSeparateWorkers(t *testing.T) {
	var started sync.WaitGroup
	started.Add(2)
	release := make(chan struct{})

	p, created := newHandlerPool(t, 2, func(_ context.Context, req backend.Request) (json.RawMessage, error) {
		started.Done()
		<-release
		return req.Payload, nil
	})
	sink := newResultSink()

	p.Submit(json.RawMessage(`"a"`), sink.callback)
	p.Submit(json.RawMessage(`"b"`), sink.callback)

	started.Wait()
	assert.Equal(t, 2, p.Stats().Busy)
	close(release)

	r1, r2 := sink.next(t), sink.next(t)
	require.NoError(t, r1.Err)
	require.NoError(t, r2.Err)
	assert.NotEqual(t, r1.WorkerID, r2.WorkerID)
	assert.EqualValues(t, 2, created.Load())
}

// A fault fails only its own task; the worker takes the next one.
func TestFaultKeepsWorker(t *testing.T) {
	p, created := newHandlerPool(t, 1, func(_ context.Context, req backend.Request) (json.RawMessage, error) {
		if string(req.Payload) == `"fail"` {
			return nil, errors.New("handler refused")
		}
		return req.Payload, nil
	})
	sink := newResultSink()

	p.Submit(json.RawMessage(`"fail"`), sink.callback)
	r := sink.next(t)
	require.Error(t, r.Err)
	assert.ErrorIs(t, r.Err, ErrTaskFault)
	assert.Contains(t, r.Err.Error(), "handler refused")
	assert.Nil(t, r.Value)

	p.Submit(json.RawMessage(`"ok"`), sink.callback)
	r = sink.next(t)
	require.NoError(t, r.Err)
	assert.Equal(t, `"ok"`, string(r.Value))
	assert.EqualValues(t, 1, created.Load())
}

// A strategy failure reaches the triggering task and leaves the pool empty.
func TestSpawnFailure(t *testing.T) {
	p, s := newFakePool(t, 2, nil)
	s.failCreate(errBoom)
	sink := newResultSink()

	id := p.Submit(json.RawMessage(`1`), sink.callback)
	r := sink.next(t)

	assert.Equal(t, id, r.TaskID)
	assert.ErrorIs(t, r.Err, ErrSpawnFailed)
	assert.ErrorIs(t, r.Err, errBoom)
	var spawnErr *SpawnError
	require.ErrorAs(t, r.Err, &spawnErr)
	assert.Empty(t, spawnErr.WorkerID)
	assert.Zero(t, p.Stats().Workers)

	// The pool recovers once the strategy does.
	s.failCreate(nil)
	p.Submit(json.RawMessage(`2`), sink.callback)
	w := s.nextWorker(t)
	w.emit(backend.Event{Kind: backend.EventReady})
	waitSent(t, w)
	w.emit(backend.Event{Kind: backend.EventResult, Result: json.RawMessage(`2`)})
	require.NoError(t, sink.next(t).Err)
}

func TestSpawnFailureOnCreate(t *testing.T) {
	p, _ := newFakePool(t, 1, func(cfg *Config) {
		cfg.OnCreate = func(backend.Worker) error { return errBoom }
	})
	sink := newResultSink()

	p.Submit(json.RawMessage(`1`), sink.callback)
	r := sink.next(t)

	var spawnErr *SpawnError
	require.ErrorAs(t, r.Err, &spawnErr)
	assert.NotEmpty(t, spawnErr.WorkerID)
	assert.ErrorIs(t, r.Err, errBoom)
	waitFor(t, func() bool { return p.Stats().Workers == 0 })
}

// Every queued task eventually sees a spawn error when spawning keeps failing.
func TestSpawnFailureDrainsQueue(t *testing.T) {
	p, s := newFakePool(t, 1, nil)
	entered := make(chan struct{})
	block := make(chan struct{})
	s.prepare = func(*fakeWorker) {
		close(entered)
		<-block
	}
	sink := newResultSink()

	for i := 0; i < 3; i++ {
		p.Submit(json.RawMessage(`1`), sink.callback)
	}
	waitFor(t, func() bool { return p.Stats().Queued == 2 })

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first spawn never reached the strategy")
	}
	s.failCreate(errBoom)
	close(block)

	// The first spawn was already past the failure check.
	w := s.nextWorker(t)
	w.exit(errors.New("crashed during boot"))

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, sink.next(t).Err, ErrSpawnFailed)
	}
	require.NoError(t, p.Drain(context.Background()))
	assert.Zero(t, p.Stats().Workers)
}

func TestTasksWaitForReady(t *testing.T) {
	p, s := newFakePool(t, 1, nil)
	sink := newResultSink()

	p.Submit(json.RawMessage(`"first"`), sink.callback)
	p.Submit(json.RawMessage(`"second"`), sink.callback)
	w := s.nextWorker(t)

	select {
	case payload := <-w.sent:
		t.Fatalf("payload %s sent before ready", payload)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, Stats{Strategy: "fake", Max: 1, Workers: 1, Spawning: 1, Queued: 1}, p.Stats())

	w.emit(backend.Event{Kind: backend.EventReady})
	assert.Equal(t, `"first"`, string(waitSent(t, w)))

	w.emit(backend.Event{Kind: backend.EventResult, Result: json.RawMessage(`1`)})
	assert.Equal(t, `"second"`, string(waitSent(t, w)))
	w.emit(backend.Event{Kind: backend.EventResult, Result: json.RawMessage(`2`)})

	assert.Equal(t, `1`, string(sink.next(t).Value))
	assert.Equal(t, `2`, string(sink.next(t).Value))
}

func TestEventsBeforeReadyAreDropped(t *testing.T) {
	var logged atomic.Int32
	p, s := newFakePool(t, 1, func(cfg *Config) {
		cfg.Hooks.OnLog = func(string, string) { logged.Add(1) }
	})
	sink := newResultSink()

	p.Submit(json.RawMessage(`1`), sink.callback)
	w := s.nextWorker(t)

	w.emit(backend.Event{Kind: backend.EventLog, Line: "early"})
	w.emit(backend.Event{Kind: backend.EventResult, Result: json.RawMessage(`"bogus"`)})
	w.emit(backend.Event{Kind: backend.EventFault, Err: errBoom})
	sink.none(t, 50*time.Millisecond)

	w.emit(backend.Event{Kind: backend.EventReady})
	waitSent(t, w)
	w.emit(backend.Event{Kind: backend.EventResult, Result: json.RawMessage(`"real"`)})

	r := sink.next(t)
	require.NoError(t, r.Err)
	assert.Equal(t, `"real"`, string(r.Value))
	assert.Zero(t, logged.Load())
}

func TestDuplicateCompletionIgnored(t *testing.T) {
	p, s := newFakePool(t, 1, nil)
	var calls atomic.Int32
	done := make(chan struct{}, 4)

	p.Submit(json.RawMessage(`1`), func(Result) {
		calls.Add(1)
		done <- struct{}{}
	})
	w := s.nextWorker(t)
	w.emit(backend.Event{Kind: backend.EventReady})
	waitSent(t, w)

	w.emit(backend.Event{Kind: backend.EventResult, Result: json.RawMessage(`1`)})
	w.emit(backend.Event{Kind: backend.EventResult, Result: json.RawMessage(`1`)})
	w.emit(backend.Event{Kind: backend.EventFault, Err: errBoom})
	w.emit(backend.Event{Kind: backend.EventReady})

	<-done
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, 1, p.Stats().Idle)
}

func TestLogsRoutedToInFlightTask(t *testing.T) {
	var mu sync.Mutex
	lines := map[string][]string{}
	var dispatched []string

	p, s := newFakePool(t, 1, func(cfg *Config) {
		cfg.Hooks.OnLog = func(taskID, line string) {
			mu.Lock()
			defer mu.Unlock()
			lines[taskID] = append(lines[taskID], line)
		}
		cfg.Hooks.OnDispatch = func(taskID, _ string) {
			mu.Lock()
			defer mu.Unlock()
			dispatched = append(dispatched, taskID)
		}
	})
	sink := newResultSink()

	id := p.Submit(json.RawMessage(`1`), sink.callback)
	w := s.nextWorker(t)
	w.emit(backend.Event{Kind: backend.EventReady})
	waitSent(t, w)
	w.emit(backend.Event{Kind: backend.EventLog, Line: "one"})
	w.emit(backend.Event{Kind: backend.EventLog, Line: "two"})
	w.emit(backend.Event{Kind: backend.EventResult, Result: json.RawMessage(`1`)})
	sink.next(t)

	// No task in flight: dropped.
	w.emit(backend.Event{Kind: backend.EventLog, Line: "stray"})
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string][]string{id: {"one", "two"}}, lines)
	assert.Equal(t, []string{id}, dispatched)
}

func TestWorkerExitWhileBusy(t *testing.T) {
	p, s := newFakePool(t, 1, nil)
	sink := newResultSink()

	p.Submit(json.RawMessage(`1`), sink.callback)
	p.Submit(json.RawMessage(`2`), sink.callback)

	w1 := s.nextWorker(t)
	w1.emit(backend.Event{Kind: backend.EventReady})
	waitSent(t, w1)
	w1.exit(errors.New("segfault"))

	r := sink.next(t)
	assert.ErrorIs(t, r.Err, ErrWorkerExited)
	assert.Contains(t, r.Err.Error(), "segfault")

	// The queued task gets a replacement worker.
	w2 := s.nextWorker(t)
	w2.emit(backend.Event{Kind: backend.EventReady})
	assert.Equal(t, `2`, string(waitSent(t, w2)))
	w2.emit(backend.Event{Kind: backend.EventResult, Result: json.RawMessage(`2`)})

	r = sink.next(t)
	require.NoError(t, r.Err)
	assert.Equal(t, w2.ID(), r.WorkerID)
}

func TestIdleWorkerExitIsSilent(t *testing.T) {
	p, s := newFakePool(t, 1, nil)
	sink := newResultSink()

	p.Submit(json.RawMessage(`1`), sink.callback)
	w := s.nextWorker(t)
	w.emit(backend.Event{Kind: backend.EventReady})
	waitSent(t, w)
	w.emit(backend.Event{Kind: backend.EventResult, Result: json.RawMessage(`1`)})
	sink.next(t)

	w.exit(nil)
	waitFor(t, func() bool { return p.Stats().Workers == 0 })
	sink.none(t, 20*time.Millisecond)
}

func TestExitBeforeReadyIsSpawnFailure(t *testing.T) {
	p, s := newFakePool(t, 1, nil)
	sink := newResultSink()

	p.Submit(json.RawMessage(`1`), sink.callback)
	s.nextWorker(t).exit(errors.New("bad boot script"))

	r := sink.next(t)
	assert.ErrorIs(t, r.Err, ErrSpawnFailed)
	assert.Contains(t, r.Err.Error(), "bad boot script")
	assert.Zero(t, p.Stats().Workers)
}

func TestReadyTimeout(t *testing.T) {
	p, s := newFakePool(t, 1, func(cfg *Config) {
		cfg.ReadyTimeout = 30 * time.Millisecond
	})
	sink := newResultSink()

	p.Submit(json.RawMessage(`1`), sink.callback)
	w := s.nextWorker(t)

	r := sink.next(t)
	assert.ErrorIs(t, r.Err, ErrSpawnFailed)
	assert.ErrorIs(t, r.Err, ErrReadyTimeout)
	waitFor(t, func() bool { return p.Stats().Workers == 0 })

	// A late ready signal is ignored.
	w.emit(backend.Event{Kind: backend.EventReady})
	select {
	case payload := <-w.sent:
		t.Fatalf("payload %s sent to timed out worker", payload)
	case <-time.After(20 * time.Millisecond):
	}
}

// Time spent inside Create counts against ReadyTimeout.
func TestReadyTimeoutIncludesCreate(t *testing.T) {
	p, s := newFakePool(t, 1, func(cfg *Config) {
		cfg.ReadyTimeout = 30 * time.Millisecond
	})
	s.prepare = func(*fakeWorker) { time.Sleep(100 * time.Millisecond) }
	sink := newResultSink()

	p.Submit(json.RawMessage(`1`), sink.callback)
	w := s.nextWorker(t)
	w.emit(backend.Event{Kind: backend.EventReady})

	r := sink.next(t)
	assert.ErrorIs(t, r.Err, ErrReadyTimeout)
	waitFor(t, func() bool { return p.Stats().Workers == 0 })
}

func TestNoReadyTimeoutWaitsIndefinitely(t *testing.T) {
	p, s := newFakePool(t, 1, nil)
	sink := newResultSink()

	p.Submit(json.RawMessage(`1`), sink.callback)
	w := s.nextWorker(t)
	sink.none(t, 100*time.Millisecond)
	assert.Equal(t, 1, p.Stats().Spawning)

	w.emit(backend.Event{Kind: backend.EventReady})
	waitSent(t, w)
	w.emit(backend.Event{Kind: backend.EventResult, Result: json.RawMessage(`1`)})
	require.NoError(t, sink.next(t).Err)
}

func TestSendFailureRetiresWorker(t *testing.T) {
	p, s := newFakePool(t, 1, nil)
	s.prepare = func(w *fakeWorker) { w.sendErr = errBoom }
	sink := newResultSink()

	p.Submit(json.RawMessage(`1`), sink.callback)
	w := s.nextWorker(t)
	w.emit(backend.Event{Kind: backend.EventReady})

	r := sink.next(t)
	assert.ErrorIs(t, r.Err, ErrTaskFault)
	assert.Contains(t, r.Err.Error(), "boom")
	waitFor(t, func() bool { return p.Stats().Workers == 0 })
}

func TestCloseRejectsOutstandingWork(t *testing.T) {
	p, s := newFakePool(t, 1, nil)
	sink := newResultSink()

	p.Submit(json.RawMessage(`"in-flight"`), sink.callback)
	p.Submit(json.RawMessage(`"queued"`), sink.callback)
	w := s.nextWorker(t)
	w.emit(backend.Event{Kind: backend.EventReady})
	waitSent(t, w)

	assert.False(t, p.Stats().Closed)
	require.NoError(t, p.Close(context.Background()))
	assert.True(t, p.Stats().Closed)

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, sink.next(t).Err, ErrPoolClosed)
	}

	// A completion racing Close is dropped.
	w.emit(backend.Event{Kind: backend.EventResult, Result: json.RawMessage(`1`)})
	sink.none(t, 20*time.Millisecond)

	p.Submit(json.RawMessage(`"late"`), sink.callback)
	assert.ErrorIs(t, sink.next(t).Err, ErrPoolClosed)

	require.NoError(t, p.Close(context.Background()))
}

func TestCloseRejectsPendingSpawn(t *testing.T) {
	p, s := newFakePool(t, 1, nil)
	sink := newResultSink()

	p.Submit(json.RawMessage(`1`), sink.callback)
	w := s.nextWorker(t)

	require.NoError(t, p.Close(context.Background()))
	assert.ErrorIs(t, sink.next(t).Err, ErrPoolClosed)

	// Close waits for the created worker to be torn down.
	w.mu.Lock()
	defer w.mu.Unlock()
	assert.True(t, w.closed)
}

func TestRun(t *testing.T) {
	p, _ := newHandlerPool(t, 2, func(_ context.Context, req backend.Request) (json.RawMessage, error) {
		var n int
		if err := json.Unmarshal(req.Payload, &n); err != nil {
			return nil, err
		}
		return json.Marshal(n * n)
	})

	out, err := p.Run(context.Background(), json.RawMessage(`9`))
	require.NoError(t, err)
	assert.Equal(t, "81", string(out))

	_, err = p.Run(context.Background(), json.RawMessage(`"x"`))
	assert.ErrorIs(t, err, ErrTaskFault)
}

func TestRunContextCanceled(t *testing.T) {
	release := make(chan struct{})
	p, _ := newHandlerPool(t, 1, func(context.Context, backend.Request) (json.RawMessage, error) {
		<-release
		return json.RawMessage(`null`), nil
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Run(ctx, json.RawMessage(`1`))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDrain(t *testing.T) {
	var done atomic.Int32
	p, _ := newHandlerPool(t, 2, func(_ context.Context, req backend.Request) (json.RawMessage, error) {
		time.Sleep(5 * time.Millisecond)
		return req.Payload, nil
	})

	for i := 0; i < 10; i++ {
		p.Submit(json.RawMessage(`1`), func(Result) { done.Add(1) })
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Drain(ctx))
	assert.EqualValues(t, 10, done.Load())

	st := p.Stats()
	assert.Zero(t, st.Queued)
	assert.Zero(t, st.Busy)
	assert.Equal(t, st.Workers, st.Idle)
}

func TestDrainContextCanceled(t *testing.T) {
	p, s := newFakePool(t, 1, nil)
	p.Submit(json.RawMessage(`1`), nil)
	s.nextWorker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Drain(ctx), context.DeadlineExceeded)
}

// Exactly-once delivery and the worker cap under concurrent submitters.
func TestConcurrentSubmitters(t *testing.T) {
	const (
		max        = 4
		submitters = 8
		perWorker  = 50
	)

	var running, peak atomic.Int32
	p, created := newHandlerPool(t, max, func(_ context.Context, req backend.Request) (json.RawMessage, error) {
		n := running.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(100 * time.Microsecond)
		running.Add(-1)
		return req.Payload, nil
	})

	var mu sync.Mutex
	calls := make(map[string]int)
	var wg sync.WaitGroup
	for s := 0; s < submitters; s++ {
		wg.Go(func() {
			for i := 0; i < perWorker; i++ {
				p.Submit(json.RawMessage(`0`), func(r Result) {
					mu.Lock()
					defer mu.Unlock()
					calls[r.TaskID]++
				})
			}
		})
	}
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, p.Drain(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, calls, submitters*perWorker)
	for id, n := range calls {
		assert.Equal(t, 1, n, "task %s", id)
	}
	assert.LessOrEqual(t, peak.Load(), int32(max))
	assert.LessOrEqual(t, created.Load(), int32(max))
}

// Queued tasks are dispatched in submission order.
func TestQueueIsFIFO(t *testing.T) {
	p, s := newFakePool(t, 1, nil)

	var mu sync.Mutex
	var order []string
	cb := func(r Result) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, string(r.Value))
	}

	for i := 0; i < 5; i++ {
		p.Submit(json.RawMessage(fmt.Sprint(i)), cb)
	}
	w := s.nextWorker(t)
	w.emit(backend.Event{Kind: backend.EventReady})
	for i := 0; i < 5; i++ {
		payload := waitSent(t, w)
		assert.Equal(t, fmt.Sprint(i), string(payload))
		w.emit(backend.Event{Kind: backend.EventResult, Result: payload})
	}

	require.NoError(t, p.Drain(context.Background()))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"0", "1", "2", "3", "4"}, order)
}

// A slow dispatch hook delays the send, never the submitter.
func TestSubmitDoesNotWaitForDispatchHook(t *testing.T) {
	release := make(chan struct{})
	p, s := newFakePool(t, 1, func(cfg *Config) {
		cfg.Hooks.OnDispatch = func(string, string) { <-release }
	})
	sink := newResultSink()

	// Park one idle worker.
	p.Submit(json.RawMessage(`"warm"`), sink.callback)
	w := s.nextWorker(t)
	w.emit(backend.Event{Kind: backend.EventReady})
	release <- struct{}{}
	waitSent(t, w)
	w.emit(backend.Event{Kind: backend.EventResult, Result: json.RawMessage(`0`)})
	require.NoError(t, sink.next(t).Err)
	waitFor(t, func() bool { return p.Stats().Idle == 1 })

	returned := make(chan struct{})
	go func() {
		p.Submit(json.RawMessage(`"next"`), sink.callback)
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Submit blocked on the dispatch hook")
	}

	select {
	case payload := <-w.sent:
		t.Fatalf("payload %s sent before the hook returned", payload)
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	assert.Equal(t, `"next"`, string(waitSent(t, w)))
}

func TestSubmitTaskKeepsID(t *testing.T) {
	p, _ := newHandlerPool(t, 1, echo)
	sink := newResultSink()

	id := p.SubmitTask(Task{ID: "custom-id", Payload: json.RawMessage(`true`), Callback: sink.callback})
	assert.Equal(t, "custom-id", id)

	r := sink.next(t)
	assert.Equal(t, "custom-id", r.TaskID)
	assert.False(t, r.DispatchedAt.IsZero())
	assert.False(t, r.CompletedAt.Before(r.DispatchedAt))
}

func TestIsolatePool(t *testing.T) {
	p, err := New(testRegistry(), Config{
		Boot:       backend.BootSpec{Source: `function handle(x) { console.log("squaring", x); return x * x; }`},
		Strategy:   backend.KindIsolate,
		MaxWorkers: 2,
		Options:    isolate.Options{TaskTimeout: time.Second},
		Debug:      true,
	})
	require.NoError(t, err)
	defer p.Close(context.Background())

	var results sync.Map
	var wg sync.WaitGroup
	for i := 1; i <= 6; i++ {
		wg.Add(1)
		p.Submit(json.RawMessage(fmt.Sprint(i)), func(r Result) {
			defer wg.Done()
			results.Store(r.TaskID, r)
		})
	}
	wg.Wait()

	n := 0
	results.Range(func(_, v any) bool {
		r := v.(Result)
		assert.NoError(t, r.Err)
		n++
		return true
	})
	assert.Equal(t, 6, n)
	assert.LessOrEqual(t, p.Stats().Workers, 2)
}

func TestIsolateSpawnFailure(t *testing.T) {
	p, err := New(testRegistry(), Config{
		Boot:     backend.BootSpec{Source: `var notAFunction = 1;`},
		Strategy: backend.KindIsolate,
		Debug:    true,
	})
	require.NoError(t, err)
	defer p.Close(context.Background())

	_, err = p.Run(context.Background(), json.RawMessage(`1`))
	assert.ErrorIs(t, err, ErrSpawnFailed)
	assert.ErrorIs(t, err, isolate.ErrNoEntry)
}
