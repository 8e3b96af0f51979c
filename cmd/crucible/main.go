package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/seantiz/crucible/internal/api"
	"github.com/seantiz/crucible/internal/backend"
	"github.com/seantiz/crucible/internal/backend/isolate"
	"github.com/seantiz/crucible/internal/backend/thread"
	"github.com/seantiz/crucible/internal/config"
	"github.com/seantiz/crucible/internal/engine"
	"github.com/seantiz/crucible/internal/store"
)

// workerBinary is looked up next to this executable when the thread strategy
// has no explicit boot path.
const workerBinary = "crucible-worker"

func main() {
	cfg := config.Load()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	if cfg.Strategy == backend.KindThread && cfg.BootPath == "" {
		cfg.BootPath = defaultWorkerPath()
	}

	logger.Info("crucible: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"strategy", cfg.Strategy,
		"max_workers", cfg.MaxWorkers,
	)

	poolCfg, err := cfg.PoolConfig(logger)
	if err != nil {
		log.Fatalf("invalid pool configuration: %v", err)
	}

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	reg := backend.NewRegistry()
	reg.Register(thread.New(logger))
	reg.Register(isolate.New(logger))

	eng, err := engine.New(db, reg, poolCfg, logger)
	if err != nil {
		log.Fatalf("failed to create engine: %v", err)
	}

	srv := api.NewServer(cfg.ListenAddr, db, reg, eng, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// defaultWorkerPath returns the worker binary beside the running executable,
// or the bare name so that PATH lookup applies.
func defaultWorkerPath() string {
	exe, err := os.Executable()
	if err != nil {
		return workerBinary
	}
	candidate := filepath.Join(filepath.Dir(exe), workerBinary)
	if _, err := os.Stat(candidate); err != nil {
		return workerBinary
	}
	return candidate
}
