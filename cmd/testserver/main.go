// testserver starts a crucible API server whose workers run an in-process stub
// handler, for E2E testing without a worker binary or external runtimes.
// Usage: go run ./cmd/testserver
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/seantiz/crucible/internal/api"
	"github.com/seantiz/crucible/internal/backend"
	"github.com/seantiz/crucible/internal/backend/isolate"
	"github.com/seantiz/crucible/internal/backend/thread"
	"github.com/seantiz/crucible/internal/config"
	"github.com/seantiz/crucible/internal/engine"
	"github.com/seantiz/crucible/internal/pool"
	"github.com/seantiz/crucible/internal/store"
)

// stubRequest is the payload understood by stubHandler.
type stubRequest struct {
	Echo    json.RawMessage `json:"echo"`
	Log     []string        `json:"log"`
	SleepMS int             `json:"sleep_ms"`
	Fail    string          `json:"fail"`
}

// stubHandler logs the requested lines, sleeps, then echoes or fails.
func stubHandler(ctx context.Context, req backend.Request) (json.RawMessage, error) {
	var in stubRequest
	if err := json.Unmarshal(req.Payload, &in); err != nil {
		return nil, fmt.Errorf("decode stub request: %w", err)
	}
	for _, l := range in.Log {
		req.Log(l)
	}
	if in.SleepMS > 0 {
		select {
		case <-time.After(time.Duration(in.SleepMS) * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if in.Fail != "" {
		return nil, errors.New(in.Fail)
	}
	if in.Echo == nil {
		return json.RawMessage("null"), nil
	}
	return in.Echo, nil
}

func main() {
	cfg := config.Load()

	db, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	reg := backend.NewRegistry()
	reg.Register(thread.New(logger))
	reg.Register(isolate.New(logger))

	eng, err := engine.New(db, reg, pool.Config{
		Boot:       backend.BootSpec{Handler: stubHandler},
		MaxWorkers: cfg.MaxWorkers,
		Strategy:   backend.KindThread,
		Logger:     logger,
		Debug:      true,
	}, logger)
	if err != nil {
		log.Fatalf("failed to create engine: %v", err)
	}

	srv := api.NewServer(cfg.ListenAddr, db, reg, eng, logger)

	logger.Info("testserver: starting", "addr", cfg.ListenAddr, "max_workers", cfg.MaxWorkers)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
