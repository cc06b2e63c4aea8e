package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/me/coopsched/internal/config"
	"github.com/me/coopsched/internal/scheduler"
	"github.com/me/coopsched/internal/trace"
	"github.com/me/coopsched/pkg/dispatch"
)

// Server is the coopsched REST API server.
type Server struct {
	router      chi.Router
	logger      *slog.Logger
	config      config.ServerConfig
	startTime   time.Time
	registry    *dispatch.Registry
	loop        *scheduler.Loop // optional; nil when no loop drives the table
	store       trace.Store     // optional; trace endpoints are mounted only when set
	board       string
	sseInterval time.Duration
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithLoop attaches the scheduler loop whose counters are reported by /health.
func WithLoop(l *scheduler.Loop) Option {
	return func(s *Server) {
		s.loop = l
	}
}

// WithTraceStore enables the /runs endpoints.
func WithTraceStore(st trace.Store) Option {
	return func(s *Server) {
		s.store = st
	}
}

// WithBoardName sets the board name reported by /health.
func WithBoardName(name string) Option {
	return func(s *Server) {
		s.board = name
	}
}

// WithSSEInterval sets how often /sse/tasks samples the table.
func WithSSEInterval(d time.Duration) Option {
	return func(s *Server) {
		s.sseInterval = d
	}
}

// New creates a new Server with all routes registered.
func New(cfg config.ServerConfig, reg *dispatch.Registry, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		logger:      logger.With("component", "server"),
		config:      cfg,
		startTime:   time.Now(),
		registry:    reg,
		sseInterval: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Route("/api/v1", func(r chi.Router) {
		// Discovery
		r.Get("/", s.handleDiscovery)

		// Health
		r.Get("/health", s.handleHealth)

		// Whole-table text dump
		r.Get("/dump", s.handleDumpTable)

		// Tasks, addressed by index or name
		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.handleListTasks)
			r.Route("/{ref}", func(r chi.Router) {
				r.Get("/", s.handleGetTask)
				r.Get("/dump", s.handleDumpTask)
				r.Put("/state", s.handleSetState)
				r.Put("/period", s.handleSetPeriod)
				r.Put("/counter", s.handleSetCounter)
			})
		})

		// Trace runs
		if s.store != nil {
			r.Route("/runs", func(r chi.Router) {
				r.Get("/", s.handleListRuns)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetRun)
					r.Get("/events", s.handleListEvents)
				})
			})
		}

		// SSE endpoints for live table updates
		r.Route("/sse", func(r chi.Router) {
			r.Get("/tasks", s.handleSSETasks)
		})
	})
}
