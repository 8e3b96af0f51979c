// Package engine records every task submitted to the pool in the task ledger.
// It creates the ledger entry, marks it running when the pool dispatches it,
// persists and streams the worker's log lines, and stores the outcome when the
// pool delivers the result.
package engine
