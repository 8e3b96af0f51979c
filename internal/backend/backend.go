package backend

import (
	"context"
	"encoding/json"
	"errors"
)

// Kind selects a backend strategy.
type Kind string

// Strategy kinds.
const (
	KindThread  Kind = "thread"
	KindIsolate Kind = "isolate"
)

// DefaultKind is used when a pool configuration leaves the strategy empty.
const DefaultKind = KindThread

var (
	// ErrUnsupportedBoot is returned when a strategy cannot boot the given BootSpec mode.
	ErrUnsupportedBoot = errors.New("boot mode not supported by strategy")

	// ErrWorkerBusy is returned by Send when a payload is already outstanding.
	ErrWorkerBusy = errors.New("worker already has an outstanding task")

	// ErrWorkerClosed is returned by Send after the worker has been terminated or exited.
	ErrWorkerClosed = errors.New("worker is closed")

	// ErrUnknownStrategy is returned when resolving a kind nobody registered.
	ErrUnknownStrategy = errors.New("strategy is not registered")
)

// EventKind identifies what a worker is reporting.
type EventKind int

const (
	// EventReady is the mandatory first event of every worker.
	EventReady EventKind = iota + 1
	// EventResult carries the success value of the current task.
	EventResult
	// EventFault carries the failure of the current task.
	EventFault
	// EventLog carries one log line emitted while running the current task.
	EventLog
	// EventExit is the last event before the stream closes. Err is set when the
	// execution context ended abnormally.
	EventExit
)

// String returns the wire name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventReady:
		return "ready"
	case EventResult:
		return "result"
	case EventFault:
		return "fault"
	case EventLog:
		return "log"
	case EventExit:
		return "exit"
	default:
		return "unknown"
	}
}

// Event is a single signal from a worker's execution context.
type Event struct {
	Kind   EventKind
	Result json.RawMessage
	Err    error
	Line   string
}

// Worker is the uniform handle the pool drives, regardless of strategy.
//
// A worker emits exactly one EventReady before anything else. For every payload
// accepted by Send it then emits zero or more EventLog events followed by exactly
// one EventResult or EventFault. When the execution context ends it emits
// EventExit and closes the channel.
type Worker interface {
	// ID returns the worker's opaque identity.
	ID() string

	// Send hands one payload to the execution context. It must not block on the
	// execution itself. Returns ErrWorkerBusy if a payload is still outstanding.
	Send(payload json.RawMessage) error

	// Events returns the worker's event stream. It has a single consumer.
	Events() <-chan Event

	// Terminate stops the execution context and releases its resources. The
	// event stream is closed once it returns.
	Terminate(ctx context.Context) error
}

// Strategy creates workers of one kind.
type Strategy interface {
	// Kind reports the selector value this strategy is registered under.
	Kind() Kind

	// Capabilities reports which boot modes the strategy accepts.
	Capabilities() Capabilities

	// Create builds a new worker. It may perform multi-step setup and may fail.
	// The returned worker has not necessarily signalled readiness yet.
	Create(ctx context.Context, boot BootSpec, opts any) (Worker, error)
}

// Capabilities describes what a strategy supports.
type Capabilities struct {
	Name      string   `json:"name"`
	Kind      Kind     `json:"kind"`
	BootModes []string `json:"boot_modes"`
}

// Request is the task as seen by in-Go worker code.
type Request struct {
	Payload json.RawMessage

	// Log emits a log line attributed to the current task. Never nil.
	Log func(line string)
}

// HandlerFunc is the body of an in-Go worker: it runs one task and returns its
// result. A returned error is reported as a fault for that task only.
type HandlerFunc func(ctx context.Context, req Request) (json.RawMessage, error)
