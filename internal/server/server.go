// Package server exposes a long-running gsd process over HTTP: liveness,
// Prometheus metrics and the summary of the last ingestion run.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/klytics/gsdkit/internal/pipeline"
)

// Status tracks the most recent run for /runs/last.
type Status struct {
	mu   sync.RWMutex
	last *pipeline.Summary
	err  string
}

// Set records a finished run.
func (s *Status) Set(sum *pipeline.Summary, runErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = sum
	s.err = ""
	if runErr != nil {
		s.err = runErr.Error()
	} else if sum != nil && sum.Err() != nil {
		s.err = sum.Err().Error()
	}
}

func (s *Status) get() (*pipeline.Summary, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.err
}

// Server serves /healthz, /metrics and /runs/last.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a server on addr. gatherer supplies /metrics.
func New(addr string, gatherer prometheus.Gatherer, status *Status, logger *slog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "healthy"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/runs/last", handleLastRun(status))

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

func handleLastRun(status *Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sum, errText := status.get()
		if sum == nil {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, map[string]string{"error": "no run has finished yet"})
			return
		}
		render.JSON(w, r, map[string]any{
			"ok":      errText == "",
			"error":   errText,
			"summary": sum,
		})
	}
}

// Start listens until Shutdown. It returns http.ErrServerClosed after a
// graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains connections within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
