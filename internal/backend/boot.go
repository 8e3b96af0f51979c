package backend

import (
	"context"
	"errors"
	"fmt"
)

// Boot modes, as reported by BootSpec.Mode and Capabilities.BootModes.
const (
	BootPath    = "path"
	BootSource  = "source"
	BootHandler = "handler"
	BootFactory = "factory"
)

// Factory builds a worker from the strategy options passed through verbatim.
type Factory func(ctx context.Context, opts any) (Worker, error)

// BootSpec describes what a new worker runs. Exactly one of Path, Source,
// Handler or Factory must be set.
type BootSpec struct {
	// Path is an executable (thread) or a script file (isolate).
	Path string
	// Args are passed to a Path executable.
	Args []string
	// Source is inline source text evaluated by the execution context.
	Source string
	// Handler runs in-process on a dedicated goroutine.
	Handler HandlerFunc
	// Factory returns a ready-made worker.
	Factory Factory
}

// Mode returns the boot mode of the spec, or "" when none or several are set.
func (b BootSpec) Mode() string {
	var modes []string
	if b.Path != "" {
		modes = append(modes, BootPath)
	}
	if b.Source != "" {
		modes = append(modes, BootSource)
	}
	if b.Handler != nil {
		modes = append(modes, BootHandler)
	}
	if b.Factory != nil {
		modes = append(modes, BootFactory)
	}
	if len(modes) != 1 {
		return ""
	}
	return modes[0]
}

var errBootMode = errors.New("boot spec must set exactly one of path, source, handler or factory")

// Validate checks that exactly one boot mode is set.
func (b BootSpec) Validate() error {
	if b.Mode() == "" {
		return errBootMode
	}
	return nil
}

// FromFactory runs the factory boot mode shared by every strategy.
func FromFactory(ctx context.Context, boot BootSpec, opts any) (Worker, error) {
	if boot.Factory == nil {
		return nil, fmt.Errorf("factory boot: %w", ErrUnsupportedBoot)
	}
	w, err := boot.Factory(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("factory: %w", err)
	}
	if w == nil {
		return nil, errors.New("factory returned a nil worker")
	}
	return w, nil
}

// Supports reports whether caps lists the given boot mode.
func (c Capabilities) Supports(mode string) bool {
	for _, m := range c.BootModes {
		if m == mode {
			return true
		}
	}
	return false
}
