// Package server exposes the prompt index over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/promptvault/internal/catalog"
	"github.com/thebtf/promptvault/internal/library"
	"github.com/thebtf/promptvault/internal/reconcile"
	"github.com/thebtf/promptvault/internal/server/sse"
	"github.com/thebtf/promptvault/pkg/models"
)

// Reconciler is the sync surface the server drives.
type Reconciler interface {
	SyncAll(ctx context.Context) (*reconcile.SyncReport, error)
	SyncOne(ctx context.Context, directory string) error
	CleanupOrphans(ctx context.Context) (*reconcile.CleanupReport, error)
}

// Resolver materializes variable values for a prompt.
type Resolver interface {
	ResolveAll(ctx context.Context, promptID int64, values map[string]string) (map[string]string, error)
}

// History records prompt executions. Optional.
type History interface {
	RecordExecution(ctx context.Context, exec models.Execution) (int64, error)
}

// Deps are the collaborators of a Server.
type Deps struct {
	Catalog    *catalog.Catalog
	Reconciler Reconciler
	Resolver   Resolver
	Library    *library.Library
	History    History
	Events     *sse.Broadcaster
	Version    string
}

// Server is the HTTP API.
type Server struct {
	deps      Deps
	router    chi.Router
	startTime time.Time
}

// New creates a Server and its routes.
func New(deps Deps) *Server {
	if deps.Events == nil {
		deps.Events = sse.NewBroadcaster()
	}
	s := &Server{
		deps:      deps,
		router:    chi.NewRouter(),
		startTime: time.Now(),
	}
	s.setupRoutes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Events returns the event broadcaster.
func (s *Server) Events() *sse.Broadcaster {
	return s.deps.Events
}

// PublishEvent forwards a reconcile event to stream clients.
func (s *Server) PublishEvent(ev reconcile.Event) {
	s.deps.Events.Publish(ev.Op, ev)
}

func (s *Server) setupRoutes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(instrument)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/events", s.handleEvents)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/prompts", func(r chi.Router) {
		r.Get("/", s.handleListPrompts)
		r.Get("/{ref}", s.handleGetPrompt)
		r.Post("/{ref}/resolve", s.handleResolve)
	})
	r.Get("/api/categories", s.handleCategories)
	r.Get("/api/fragments", s.handleFragments)
	r.Get("/api/fragments/{category}/{name}", s.handleFragment)

	r.Post("/api/sync", s.handleSync)
	r.Post("/api/cleanup", s.handleCleanup)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Info().Msg("Shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	}
}

// Addr formats a loopback listen address for port.
func Addr(port int) string {
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
}

// handleEvents streams reconcile events until the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	streamClients.Inc()
	defer streamClients.Dec()
	s.deps.Events.ServeHTTP(w, r)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("requestId", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
