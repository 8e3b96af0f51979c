// Command crucible-worker is the child process booted by the native-thread
// strategy. It speaks the framed worker protocol on stdin/stdout and runs code
// snippets with worker.ExecHandler in a private scratch directory.
//
// Stdout carries protocol frames only; diagnostics go to stderr, which the
// pool host forwards to its own log.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/seantiz/crucible/internal/config"
	"github.com/seantiz/crucible/internal/worker"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(os.Stderr, cfg.LogLevel)

	workDir, err := os.MkdirTemp("", "crucible-worker-*")
	if err != nil {
		log.Fatalf("create work dir: %v", err)
	}
	defer os.RemoveAll(workDir)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	agent := worker.New(worker.ExecHandler(workDir), logger.With("pid", os.Getpid()))
	if err := agent.Serve(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		logger.Error("serve", "error", err)
		os.RemoveAll(workDir)
		os.Exit(1)
	}
}
