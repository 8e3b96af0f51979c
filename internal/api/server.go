package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/sync/errgroup"

	"github.com/seantiz/crucible/internal/backend"
	"github.com/seantiz/crucible/internal/engine"
	"github.com/seantiz/crucible/internal/store"
)

const (
	// drainTimeout bounds how long Run waits for accepted tasks after the
	// listener has stopped.
	drainTimeout      = 30 * time.Second
	httpStopTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 30 * time.Second

	logStreamRoute = "/v1/tasks/{id}/logs"
)

// Server exposes an engine's pool and task ledger over HTTP.
type Server struct {
	router   *chi.Mux
	store    store.Store
	registry *backend.Registry
	engine   *engine.Engine
	logger   *slog.Logger
	addr     string
	// strategy labels metrics and logs with the pool's backend kind.
	strategy string
}

// NewServer builds the router for eng. Tasks are read back from s, which must
// be the store eng writes to.
func NewServer(addr string, s store.Store, reg *backend.Registry, eng *engine.Engine, logger *slog.Logger) *Server {
	strategy := string(eng.Pool().Strategy())
	srv := &Server{
		router:   chi.NewRouter(),
		store:    s,
		registry: reg,
		engine:   eng,
		logger:   logger.With("component", "api", "strategy", strategy),
		addr:     addr,
		strategy: strategy,
	}

	srv.router.Use(middleware.RequestID)
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(srv.logRequests)
	srv.router.Use(srv.instrument)
	srv.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	srv.routes()
	return srv
}

func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)
	s.router.Handle("/metrics", s.metricsHandler())

	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/strategies", s.handleListStrategies)
		r.Get("/pool", s.handleGetPool)
		r.Get("/stats", s.handleGetStats)

		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", s.handleSubmitTask)
			r.Post("/run", s.handleRunTask)
			r.Get("/", s.handleListTasks)
			r.Get("/{id}", s.handleGetTask)
			r.Get("/{id}/logs", s.handleStreamLogs)
			r.Get("/{id}/logs/history", s.handleGetLogHistory)
		})
	})
}

// Router returns the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run serves until ctx ends. It then stops the listener, lets the engine
// finish the tasks it already accepted and closes the pool.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("server listening", "addr", s.addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down", "cause", context.Cause(gctx))

		stopCtx, cancel := context.WithTimeout(context.Background(), httpStopTimeout)
		defer cancel()
		httpErr := httpServer.Shutdown(stopCtx)

		drainCtx, cancelDrain := context.WithTimeout(context.Background(), drainTimeout)
		defer cancelDrain()
		if err := s.engine.Shutdown(drainCtx); err != nil {
			return errors.Join(httpErr, fmt.Errorf("engine shutdown: %w", err))
		}
		if httpErr != nil {
			return fmt.Errorf("http shutdown: %w", httpErr)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// logRequests writes one structured line per request.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"route", routePattern(r),
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
