package pool

import (
	"time"

	"github.com/seantiz/crucible/internal/backend"
)

type handleState int

const (
	stateSpawning handleState = iota
	stateIdle
	stateBusy
	stateTerminated
)

func (s handleState) String() string {
	switch s {
	case stateSpawning:
		return "spawning"
	case stateIdle:
		return "idle"
	case stateBusy:
		return "busy"
	case stateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// handle is the pool's bookkeeping for one worker. All fields are guarded by
// Pool.mu.
type handle struct {
	key    string
	worker backend.Worker
	state  handleState

	// pending is the task that triggered the spawn, held until readiness.
	pending    *Task
	spawnStart time.Time

	// token and task identify the in-flight task while busy.
	token        string
	task         *Task
	dispatchedAt time.Time
}

// workerID returns the backend worker's ID, or "" while it is being created.
func (h *handle) workerID() string {
	if h.worker == nil {
		return ""
	}
	return h.worker.ID()
}
