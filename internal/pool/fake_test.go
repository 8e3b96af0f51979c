package pool

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/seantiz/crucible/internal/backend"
	"github.com/seantiz/crucible/internal/model"
)

// fakeWorker is a scriptable backend.Worker. Tests drive its event stream
// directly to reproduce misbehaving or slow workers.
type fakeWorker struct {
	id      string
	sent    chan json.RawMessage
	sendErr error

	mu     sync.Mutex
	events chan backend.Event
	closed bool
}

func newFakeWorker() *fakeWorker {
	return &fakeWorker{
		id:     model.NewID(),
		sent:   make(chan json.RawMessage, 64),
		events: make(chan backend.Event, 64),
	}
}

func (w *fakeWorker) ID() string { return w.id }

func (w *fakeWorker) Events() <-chan backend.Event { return w.events }

func (w *fakeWorker) Send(payload json.RawMessage) error {
	if w.sendErr != nil {
		return w.sendErr
	}
	w.sent <- payload
	return nil
}

func (w *fakeWorker) Terminate(context.Context) error {
	w.exit(nil)
	return nil
}

func (w *fakeWorker) emit(ev backend.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.events <- ev
	}
}

// exit emits EventExit and closes the stream.
func (w *fakeWorker) exit(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	w.events <- backend.Event{Kind: backend.EventExit, Err: err}
	close(w.events)
}

// fakeStrategy hands out fakeWorkers and publishes each one on created.
type fakeStrategy struct {
	created chan *fakeWorker

	mu        sync.Mutex
	createErr error
	prepare   func(*fakeWorker)
}

func newFakeStrategy() *fakeStrategy {
	return &fakeStrategy{created: make(chan *fakeWorker, 64)}
}

func (s *fakeStrategy) Kind() backend.Kind { return "fake" }

func (s *fakeStrategy) Capabilities() backend.Capabilities {
	return backend.Capabilities{
		Name:      "fake",
		Kind:      "fake",
		BootModes: []string{backend.BootSource},
	}
}

func (s *fakeStrategy) Create(context.Context, backend.BootSpec, any) (backend.Worker, error) {
	s.mu.Lock()
	err, prepare := s.createErr, s.prepare
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	w := newFakeWorker()
	if prepare != nil {
		prepare(w)
	}
	s.created <- w
	return w, nil
}

func (s *fakeStrategy) failCreate(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createErr = err
}

// nextWorker waits for the strategy to create a worker.
func (s *fakeStrategy) nextWorker(t *testing.T) *fakeWorker {
	t.Helper()
	select {
	case w := <-s.created:
		return w
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for worker creation")
		return nil
	}
}

func newFakePool(t *testing.T, max int, mutate func(*Config)) (*Pool, *fakeStrategy) {
	t.Helper()
	s := newFakeStrategy()
	reg := backend.NewRegistry()
	reg.Register(s)

	cfg := Config{
		Boot:       backend.BootSpec{Source: "fake"},
		MaxWorkers: max,
		Strategy:   "fake",
		Debug:      true,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	p, err := New(reg, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = p.Close(ctx)
	})
	return p, s
}

// waitSent waits for w to receive a payload.
func waitSent(t *testing.T, w *fakeWorker) json.RawMessage {
	t.Helper()
	select {
	case p := <-w.sent:
		return p
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for send")
		return nil
	}
}

// resultSink collects callbacks.
type resultSink struct {
	ch chan Result
}

func newResultSink() *resultSink {
	return &resultSink{ch: make(chan Result, 256)}
}

func (s *resultSink) callback(r Result) { s.ch <- r }

func (s *resultSink) next(t *testing.T) Result {
	t.Helper()
	select {
	case r := <-s.ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for result")
		return Result{}
	}
}

func (s *resultSink) none(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case r := <-s.ch:
		t.Fatalf("unexpected result: %+v", r)
	case <-time.After(wait):
	}
}

// waitFor polls cond until it holds.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

var errBoom = errors.New("boom")
