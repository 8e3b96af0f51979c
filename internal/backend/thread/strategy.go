// Package thread implements the native-thread strategy: workers that are fully
// capable execution contexts, either a dedicated goroutine running an in-Go
// handler or a child process speaking the framed worker protocol over stdio.
package thread

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/seantiz/crucible/internal/backend"
	"github.com/seantiz/crucible/internal/model"
)

// StrategyName is the name reported in Capabilities.
const StrategyName = "native-thread"

// eventBuffer is the capacity of a worker's event channel.
const eventBuffer = 16

// Options configures child-process workers. Pass Options or *Options as the
// pool's backend options; nil uses the defaults.
type Options struct {
	// Env is appended to the host environment of the child process.
	Env []string

	// Dir is the working directory of the child process.
	Dir string
}

// Strategy creates native-thread workers.
type Strategy struct {
	logger *slog.Logger
}

// Compile-time interface satisfaction check.
var _ backend.Strategy = (*Strategy)(nil)

// New creates a native-thread strategy. A nil logger discards output.
func New(logger *slog.Logger) *Strategy {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Strategy{logger: logger}
}

// Kind reports backend.KindThread.
func (s *Strategy) Kind() backend.Kind {
	return backend.KindThread
}

// Capabilities reports the boot modes this strategy accepts: handler, path and
// factory. Inline source is not among them. A native worker runs Go code or an
// executable and has no interpreter to hand source text to; pools that boot
// from source use the isolate strategy, and pool.New rejects the combination
// with backend.ErrUnsupportedBoot before any worker is created.
func (s *Strategy) Capabilities() backend.Capabilities {
	return backend.Capabilities{
		Name:      StrategyName,
		Kind:      backend.KindThread,
		BootModes: []string{backend.BootHandler, backend.BootPath, backend.BootFactory},
	}
}

// Create builds a worker for boot. Source boot fails with
// backend.ErrUnsupportedBoot.
func (s *Strategy) Create(ctx context.Context, boot backend.BootSpec, opts any) (backend.Worker, error) {
	switch boot.Mode() {
	case backend.BootHandler:
		return newInprocWorker(model.NewID(), boot.Handler), nil
	case backend.BootPath:
		o, err := optionsFrom(opts)
		if err != nil {
			return nil, err
		}
		return startProcess(model.NewID(), boot, o, s.logger)
	case backend.BootFactory:
		return backend.FromFactory(ctx, boot, opts)
	case "":
		return nil, boot.Validate()
	default:
		return nil, fmt.Errorf("thread strategy, %s boot: %w", boot.Mode(), backend.ErrUnsupportedBoot)
	}
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
		return Options{}, fmt.Errorf("thread strategy: unexpected options type %T", opts)
	}
}
