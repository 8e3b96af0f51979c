// Package isolate implements the isolated-context strategy: every worker owns a
// JavaScript runtime with no host capabilities other than console output and
// the globals a pool explicitly injects.
package isolate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/dop251/goja"

	"github.com/seantiz/crucible/internal/backend"
	"github.com/seantiz/crucible/internal/model"
)

// StrategyName is the name reported in Capabilities.
const StrategyName = "isolated-context"

// DefaultEntry is the global function invoked for every task.
const DefaultEntry = "handle"

const eventBuffer = 16

var (
	// ErrPromisePending is reported when the entry function returns a promise
	// that has not settled once the job queue is empty and no host function
	// could settle it later.
	ErrPromisePending = errors.New("promise still pending after job queue drained")

	// ErrTaskTimeout is reported when an evaluation exceeds Options.TaskTimeout.
	ErrTaskTimeout = errors.New("task timed out")

	// ErrNoEntry is the exit cause of a worker whose script does not define
	// the entry function.
	ErrNoEntry = errors.New("entry function not defined")
)

// Options configures isolate workers. Pass Options or *Options as the pool's
// backend options; nil uses the defaults.
type Options struct {
	// Globals are set on the global object before the script runs.
	Globals map[string]any

	// Host globals are built per worker with access to its job loop. A task
	// whose promise is still pending waits for them to settle it, bounded by
	// TaskTimeout.
	Host map[string]HostFunc

	// Entry names the global function called with each payload.
	Entry string

	// TaskTimeout interrupts an evaluation that runs longer. Zero disables it.
	TaskTimeout time.Duration
}

func (o Options) entry() string {
	if o.Entry == "" {
		return DefaultEntry
	}
	return o.Entry
}

// Strategy creates isolate workers.
type Strategy struct {
	logger *slog.Logger
}

var _ backend.Strategy = (*Strategy)(nil)

// New creates an isolated-context strategy. A nil logger discards output.
func New(logger *slog.Logger) *Strategy {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Strategy{logger: logger}
}

// Kind reports backend.KindIsolate.
func (s *Strategy) Kind() backend.Kind {
	return backend.KindIsolate
}

// Capabilities reports the boot modes this strategy accepts.
func (s *Strategy) Capabilities() backend.Capabilities {
	return backend.Capabilities{
		Name:      StrategyName,
		Kind:      backend.KindIsolate,
		BootModes: []string{backend.BootSource, backend.BootPath, backend.BootFactory},
	}
}

// Create compiles the boot script and starts a worker that evaluates it. A
// script that fails to compile never produces a worker.
func (s *Strategy) Create(ctx context.Context, boot backend.BootSpec, opts any) (backend.Worker, error) {
	var name, src string
	switch boot.Mode() {
	case backend.BootSource:
		name, src = "worker.js", boot.Source
	case backend.BootPath:
		data, err := os.ReadFile(boot.Path)
		if err != nil {
			return nil, fmt.Errorf("read script: %w", err)
		}
		name, src = boot.Path, string(data)
	case backend.BootFactory:
		return backend.FromFactory(ctx, boot, opts)
	case "":
		return nil, boot.Validate()
	default:
		return nil, fmt.Errorf("isolate strategy, %s boot: %w", boot.Mode(), backend.ErrUnsupportedBoot)
	}

	o, err := optionsFrom(opts)
	if err != nil {
		return nil, err
	}

	prog, err := goja.Compile(name, src, false)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}

	id := model.NewID()
	return startWorker(id, prog, o, s.logger.With("worker_id", id)), nil
}

func optionsFrom(opts any) (Options, error) {
	switch o := opts.(type) {
	case nil:
		return Options{}, nil
	case Options:
		return o, nil
	case *Options:
		if o == nil {
			return Options{}, nil
		}
		return *o, nil
	default:
		return Options{}, fmt.Errorf("isolate strategy: unexpected options type %T", opts)
	}
}
