package pool

import (
	"errors"
	"fmt"
)

var (
	// ErrSpawnFailed matches every *SpawnError via errors.Is.
	ErrSpawnFailed = errors.New("worker spawn failed")

	// ErrTaskFault wraps the failure a worker reported for a task.
	ErrTaskFault = errors.New("task fault")

	// ErrWorkerExited is returned for a task whose worker exited while running it.
	ErrWorkerExited = errors.New("worker exited while running task")

	// ErrReadyTimeout is the cause of a spawn that did not signal readiness
	// within Config.ReadyTimeout.
	ErrReadyTimeout = errors.New("worker did not signal readiness in time")

	// ErrPoolClosed is returned for tasks submitted to, or still pending in, a
	// closed pool.
	ErrPoolClosed = errors.New("pool is closed")
)

// SpawnError is delivered to the task that triggered a failed worker spawn.
type SpawnError struct {
	// WorkerID is empty when the strategy never produced a worker.
	WorkerID string
	Err      error
}

func (e *SpawnError) Error() string {
	if e.WorkerID == "" {
		return fmt.Sprintf("spawn worker: %v", e.Err)
	}
	return fmt.Sprintf("spawn worker %s: %v", e.WorkerID, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Is reports whether target is ErrSpawnFailed.
func (e *SpawnError) Is(target error) bool { return target == ErrSpawnFailed }

func taskFault(err error) error {
	return fmt.Errorf("%w: %s", ErrTaskFault, err)
}
