// Package server exposes the broker's catalog, task records and laid-out
// execution graphs over a JSON HTTP API for browser renderers.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/dshills/galeview/pkg/broker"
	"github.com/dshills/galeview/pkg/filter"
	"github.com/dshills/galeview/pkg/flow"
	"github.com/dshills/galeview/pkg/layout"
	"github.com/dshills/galeview/pkg/storage"
)

// Broker is the part of the broker client the server uses
type Broker interface {
	ListAgents(ctx context.Context) ([]broker.AgentDefinition, error)
	GetAgent(ctx context.Context, taskID string) (*broker.AgentDefinition, error)
	ListRootTasks(ctx context.Context) ([]broker.TaskStatusRecord, error)
	GetTaskExecutionRecord(ctx context.Context, taskInstanceID string) (*broker.TaskStatusRecord, error)
	ListTasksByCorrelationID(ctx context.Context, correlationID string) ([]broker.TaskStatusRecord, error)
	GetExecutionGraph(ctx context.Context, correlationID string) (*flow.Flow, error)
	PostTask(ctx context.Context, taskID string, input json.RawMessage) (json.RawMessage, error)
}

// Config holds the HTTP server settings
type Config struct {
	Addr           string
	CacheTTL       time.Duration
	CacheMaxBytes  int64
	RequestTimeout time.Duration
	CORSOrigin     string
	Sizes          layout.Sizes
}

// DefaultConfig returns the settings used when none are configured
func DefaultConfig() Config {
	return Config{
		Addr:           ":8090",
		CacheTTL:       30 * time.Second,
		CacheMaxBytes:  64 << 20,
		RequestTimeout: 30 * time.Second,
		CORSOrigin:     "*",
		Sizes:          layout.DefaultSizes(),
	}
}

// Server serves the API
type Server struct {
	cfg       Config
	broker    Broker
	snapshots storage.SnapshotRepository
	engine    *layout.Engine
	cache     *LayoutCache
	filters   *filter.Evaluator
	logger    *slog.Logger
}

// Option configures a Server
type Option func(*Server)

// WithSnapshots serves stored snapshots under /api/v1/snapshots
func WithSnapshots(repo storage.SnapshotRepository) Option {
	return func(s *Server) { s.snapshots = repo }
}

// WithLogger sets the logger used for requests and failures
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New creates a server. Close releases its cache.
func New(cfg Config, b Broker, opts ...Option) (*Server, error) {
	if b == nil {
		return nil, errors.New("broker cannot be nil")
	}
	if err := cfg.Sizes.Validate(); err != nil {
		return nil, err
	}
	if cfg.CacheMaxBytes <= 0 {
		cfg.CacheMaxBytes = DefaultConfig().CacheMaxBytes
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultConfig().RequestTimeout
	}

	cache, err := NewLayoutCache(cfg.CacheMaxBytes, cfg.CacheTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create layout cache: %w", err)
	}

	s := &Server{
		cfg:     cfg,
		broker:  b,
		engine:  layout.NewEngine(cfg.Sizes),
		cache:   cache,
		filters: filter.NewEvaluator(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the layout cache
func (s *Server) Close() {
	s.cache.Close()
}

// Handler returns the router with all routes mounted
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	if s.cfg.CORSOrigin != "" {
		r.Use(CORS(s.cfg.CORSOrigin))
	}
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(s.cfg.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/agents", s.listAgents)
		r.Get("/agents/{taskId}", s.getAgent)

		r.Get("/tasks", s.listTasks)
		r.Post("/tasks", s.postTask)
		r.Get("/tasks/{taskInstanceId}", s.getTask)

		r.Route("/flows/{correlationId}", func(r chi.Router) {
			r.Get("/", s.getFlow)
			r.Get("/layout", s.getLayout)
			r.Get("/levels", s.getLevels)
			r.Get("/find", s.findNode)
		})

		if s.snapshots != nil {
			r.Get("/snapshots", s.listSnapshots)
			r.Get("/snapshots/{snapshotId}", s.getSnapshot)
			r.Get("/snapshots/{snapshotId}/layout", s.getSnapshotLayout)
		}
	})

	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
