package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/seantiz/crucible/internal/backend"
	"github.com/seantiz/crucible/internal/backend/isolate"
	"github.com/seantiz/crucible/internal/pool"
)

const (
	defaultListenAddr = ":8080"
	defaultDBPath     = "crucible.db"

	envListenAddr   = "CRUCIBLE_LISTEN_ADDR"
	envDBPath       = "CRUCIBLE_DB_PATH"
	envLogLevel     = "CRUCIBLE_LOG_LEVEL"
	envStrategy     = "CRUCIBLE_STRATEGY"
	envMaxWorkers   = "CRUCIBLE_MAX_WORKERS"
	envBootPath     = "CRUCIBLE_BOOT_PATH"
	envBootArgs     = "CRUCIBLE_BOOT_ARGS"
	envBootSource   = "CRUCIBLE_BOOT_SOURCE"
	envReadyTimeout = "CRUCIBLE_READY_TIMEOUT"
	envTaskTimeout  = "CRUCIBLE_TASK_TIMEOUT"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	DBPath     string
	LogLevel   slog.Level

	Strategy   backend.Kind
	MaxWorkers int

	// BootPath is the worker executable (thread) or script file (isolate).
	BootPath string
	BootArgs []string
	// BootSource is inline worker script text for the isolate strategy.
	BootSource string

	// ReadyTimeout bounds worker startup. Zero waits indefinitely.
	ReadyTimeout time.Duration
	// TaskTimeout bounds a single isolate evaluation. Zero means no limit.
	TaskTimeout time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
// Unparseable numeric and duration values keep their defaults.
func Load() Config {
	cfg := Config{
		ListenAddr: defaultListenAddr,
		DBPath:     defaultDBPath,
		LogLevel:   slog.LevelInfo,
		Strategy:   backend.DefaultKind,
		MaxWorkers: runtime.NumCPU(),
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	if v := os.Getenv(envStrategy); v != "" {
		cfg.Strategy = backend.Kind(strings.ToLower(v))
	}
	if n, err := strconv.Atoi(os.Getenv(envMaxWorkers)); err == nil && n > 0 {
		cfg.MaxWorkers = n
	}
	cfg.BootPath = os.Getenv(envBootPath)
	if v := os.Getenv(envBootArgs); v != "" {
		cfg.BootArgs = strings.Fields(v)
	}
	cfg.BootSource = os.Getenv(envBootSource)
	cfg.ReadyTimeout = parseDuration(os.Getenv(envReadyTimeout))
	cfg.TaskTimeout = parseDuration(os.Getenv(envTaskTimeout))

	return cfg
}

// PoolConfig converts the configuration into a pool configuration for the
// selected strategy.
func (c Config) PoolConfig(logger *slog.Logger) (pool.Config, error) {
	pc := pool.Config{
		MaxWorkers:   c.MaxWorkers,
		Strategy:     c.Strategy,
		ReadyTimeout: c.ReadyTimeout,
		Logger:       logger,
	}

	switch c.Strategy {
	case backend.KindThread:
		if c.BootPath == "" {
			return pool.Config{}, fmt.Errorf("%s strategy needs %s", c.Strategy, envBootPath)
		}
		pc.Boot = backend.BootSpec{Path: c.BootPath, Args: c.BootArgs}
	case backend.KindIsolate:
		switch {
		case c.BootSource != "" && c.BootPath != "":
			return pool.Config{}, fmt.Errorf("set only one of %s and %s", envBootSource, envBootPath)
		case c.BootSource != "":
			pc.Boot = backend.BootSpec{Source: c.BootSource}
		case c.BootPath != "":
			pc.Boot = backend.BootSpec{Path: c.BootPath}
		default:
			return pool.Config{}, fmt.Errorf("%s strategy needs %s or %s", c.Strategy, envBootSource, envBootPath)
		}
		pc.Options = isolate.Options{TaskTimeout: c.TaskTimeout}
	default:
		return pool.Config{}, fmt.Errorf("strategy %q: %w", c.Strategy, backend.ErrUnknownStrategy)
	}

	return pc, nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
