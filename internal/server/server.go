// Package server exposes flow definitions over HTTP: listing, validation,
// synchronous runs against a fresh or shared store, and queued runs when a
// task queue is configured.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/petrijr/pocketflow"
	"github.com/petrijr/pocketflow/internal/definition"
	"github.com/petrijr/pocketflow/internal/taskqueue"
	"github.com/petrijr/pocketflow/pkg/api"
	"github.com/petrijr/pocketflow/pkg/worker"
)

// Options configures a Server.
type Options struct {
	Build  definition.BuildOptions
	Runner *pocketflow.Runner
	Logger *slog.Logger

	// SharedStore serves runs that ask for it with "shared": true. Runs
	// get a fresh memory store otherwise.
	SharedStore api.Store

	// RunTimeout bounds a single run; 0 means no limit beyond the request.
	RunTimeout     time.Duration
	AllowedOrigins []string

	// Queue enables "async": true runs. Run records go to RunStore, or to
	// a memory store when it is nil.
	Queue    taskqueue.Queue
	RunStore api.Store
	Worker   worker.Config
}

type entry struct {
	def  *definition.Definition
	flow api.Flow
}

type Server struct {
	opts Options

	mu     sync.RWMutex
	flows  map[string]entry
	worker *worker.Worker
}

func New(opts Options) *Server {
	if opts.Runner == nil {
		opts.Runner = pocketflow.NewRunner()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Build.Logger == nil {
		opts.Build.Logger = opts.Logger
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	s := &Server{opts: opts, flows: make(map[string]entry)}
	if opts.Queue != nil {
		cfg := opts.Worker
		if cfg.Runner == nil {
			cfg.Runner = opts.Runner
		}
		if cfg.Logger == nil {
			cfg.Logger = opts.Logger
		}
		if cfg.RunTimeout == 0 {
			cfg.RunTimeout = opts.RunTimeout
		}
		s.worker = worker.NewWithConfig(opts.Queue, s.Flow, opts.RunStore, cfg)
	}
	return s
}

// Worker returns the worker serving queued runs, or nil when no queue is
// configured. Callers start it with Worker.Run.
func (s *Server) Worker() *worker.Worker {
	return s.worker
}

// Register builds def and makes it available under its name, replacing an
// earlier flow with the same name.
func (s *Server) Register(def *definition.Definition) error {
	flow, err := definition.Build(def, s.opts.Build)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.flows[def.Name] = entry{def: def, flow: flow}
	s.mu.Unlock()
	return nil
}

// Names returns the registered flow names in sorted order.
func (s *Server) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.flows))
	for name := range s.flows {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Flow returns the registered flow with the given name.
func (s *Server) Flow(name string) (api.Flow, bool) {
	e, ok := s.lookup(name)
	return e.flow, ok
}

func (s *Server) lookup(name string) (entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.flows[name]
	return e, ok
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/flows", func(r chi.Router) {
		r.Get("/", s.listFlows)
		r.Post("/", s.createFlow)
		r.Get("/{name}", s.getFlow)
		r.Delete("/{name}", s.deleteFlow)
		r.Post("/{name}/validate", s.validateFlow)
		r.Post("/{name}/runs", s.runFlow)
	})
	r.Get("/api/runs/{id}", s.getRun)
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.opts.Logger.Debug("server: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
