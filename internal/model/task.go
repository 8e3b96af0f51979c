package model

import (
	"encoding/json"
	"time"
)

// Task status constants.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Strategy constants mirror backend.Kind values for persisted records.
const (
	StrategyThread  = "thread"
	StrategyIsolate = "isolate"
)

// validTransitions maps each status to the set of statuses it may transition to.
// A queued task may fail without ever running (spawn failure, pool closed).
var validTransitions = map[string]map[string]bool{
	StatusQueued: {
		StatusRunning:   true,
		StatusCompleted: true,
		StatusFailed:    true,
	},
	StatusRunning: {
		StatusCompleted: true,
		StatusFailed:    true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// IsTerminal reports whether status is a final task status.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// LogLine is a single persisted log line emitted by a worker while running a task.
type LogLine struct {
	ID        int64     `json:"id"`
	TaskID    string    `json:"task_id"`
	Seq       int       `json:"seq"`
	Line      string    `json:"line"`
	CreatedAt time.Time `json:"created_at"`
}

// Task is the ledger record of one unit of work submitted to the pool.
type Task struct {
	ID         string          `json:"id"`
	Status     string          `json:"status"`
	Strategy   string          `json:"strategy"`
	WorkerID   string          `json:"worker_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	DurationMS *int            `json:"duration_ms,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}
