// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server exposes the operational HTTP surface of a conductor
// process: liveness, readiness, Prometheus metrics and a read-only view of
// the tool catalogue. Tools are never executed over HTTP.
//
// Routes:
//
//	GET /healthz            liveness
//	GET /readyz             retriever health; 503 when any backend is down
//	GET /metrics            Prometheus exposition (404 when metrics are off)
//	GET /v1/tools           latest version of each tool, filterable
//	GET /v1/tools/{name}    versions, metadata and subtools of one tool
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kadirpekel/conductor/pkg/builder"
	"github.com/kadirpekel/conductor/pkg/config"
	"github.com/kadirpekel/conductor/pkg/telemetry"
)

// Source yields the runtime a request is served from. *builder.Reloader
// satisfies it, so a hot reload is visible to the next request.
type Source interface {
	Current() *builder.Runtime
}

// StaticSource serves one fixed runtime.
type StaticSource struct {
	Runtime *builder.Runtime
}

func (s StaticSource) Current() *builder.Runtime { return s.Runtime }

// Option configures a Server.
type Option func(*Server)

// WithTelemetry serves metrics from m and traces every request.
func WithTelemetry(m *telemetry.Manager) Option {
	return func(s *Server) {
		s.telemetry = m
	}
}

// WithMetricsPath overrides the path metrics are served on.
func WithMetricsPath(path string) Option {
	return func(s *Server) {
		if path != "" {
			s.metricsPath = path
		}
	}
}

// Server is the ops HTTP server.
type Server struct {
	cfg         config.ServerConfig
	source      Source
	telemetry   *telemetry.Manager
	metricsPath string
	handler     http.Handler

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// New creates a server. Call Start to begin serving.
func New(cfg config.ServerConfig, source Source, opts ...Option) *Server {
	cfg.SetDefaults()
	s := &Server{
		cfg:         cfg,
		source:      source,
		metricsPath: telemetry.DefaultMetricsPath,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.handler = s.routes()
	return s
}

// Handler returns the routed handler, for tests and for mounting into an
// existing server.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	tracer := telemetry.Tracer(telemetry.InstrumentationHTTP)
	if s.telemetry != nil {
		tracer = s.telemetry.Tracer(telemetry.InstrumentationHTTP)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestMiddleware(tracer))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if s.telemetry != nil {
		r.Handle(s.metricsPath, s.telemetry.MetricsHandler())
	}

	r.Route("/v1/tools", func(r chi.Router) {
		r.Get("/", s.handleListTools)
		r.Get("/{name}", s.handleGetTool)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, fmt.Errorf("no route for %s %s", r.Method, r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	})
	return r
}

// Start listens on the configured address and serves until ctx is done or
// Shutdown is called. It returns nil after a clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Address, err)
	}

	srv := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.mu.Lock()
	s.server = srv
	s.listener = ln
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	slog.Info("Ops server listening", "address", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Addr returns the bound address once Start is listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.cfg.Address
	}
	return s.listener.Addr().String()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	slog.Info("Shutting down ops server")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
