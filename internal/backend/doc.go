// Package backend defines the contract between the worker pool and the
// strategies that create workers (native goroutine/process workers, isolated
// JavaScript runtimes), along with the event types a worker emits.
package backend
