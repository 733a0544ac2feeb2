// Package web provides the read-only HTTP status server for the ingest daemon.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/wqingest/internal/core"
	"github.com/JonMunkholm/wqingest/internal/web/templates"

	applog "github.com/JonMunkholm/wqingest/internal/web/middleware"
)

const (
	defaultRunLimit = 20
)

// WorkerStatus reports the worker's lifecycle; satisfied by *core.Worker.
type WorkerStatus interface {
	State() core.WorkerState
	Processed() int64
}

// Info describes the daemon's static configuration for display.
type Info struct {
	SourceTag string
	Inbox     string
	Archive   string
	Target    string
	Job       string
}

// Options configures the HTTP server.
type Options struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server is the HTTP status server.
type Server struct {
	history *core.History
	worker  WorkerStatus
	info    Info
	opts    Options
	router  *chi.Mux
	server  *http.Server
	now     func() time.Time
}

// NewServer creates a new Server instance.
func NewServer(history *core.History, worker WorkerStatus, info Info, opts Options) *Server {
	s := &Server{
		history: history,
		worker:  worker,
		info:    info,
		opts:    opts,
		router:  chi.NewRouter(),
		now:     time.Now,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(applog.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))
	s.router.Use(securityHeaders)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/", s.handleDashboard)
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{runID}", s.handleGetRun)
	})
}

// Start begins listening for HTTP requests. It returns http.ErrServerClosed
// after Shutdown.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("status server listening", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status    string          `json:"status"`
	Worker    string          `json:"worker"`
	Processed int64           `json:"processed"`
	LastRun   *core.RunResult `json:"lastRun,omitempty"`
}

// handleHealth reports 200 while the worker is watching the inbox and 503
// otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.worker.State()
	resp := HealthResponse{
		Status:    "ok",
		Worker:    state.String(),
		Processed: s.worker.Processed(),
	}
	if last, ok := s.history.Last(); ok {
		resp.LastRun = &last
	}

	status := http.StatusOK
	if state != core.WorkerWatching {
		resp.Status = "unavailable"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// handleListRuns returns recent runs, newest first. ?limit=N caps the count.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.respondError(w, r, errInvalidLimit, http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs := s.history.Recent(limit)
	if runs == nil {
		runs = []core.RunResult{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// handleGetRun returns one retained run by ID.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "runID")
	run, ok := s.history.Find(id)
	if !ok {
		s.respondError(w, r, errRunNotFound, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleDashboard renders the HTML status page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	view := templates.StatusView{
		SourceTag:   s.info.SourceTag,
		Inbox:       s.info.Inbox,
		Archive:     s.info.Archive,
		Target:      s.info.Target,
		Job:         s.info.Job,
		WorkerState: s.worker.State().String(),
		Processed:   s.worker.Processed(),
		Runs:        s.history.Recent(0),
		Now:         s.now(),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.Status(view).Render(r.Context(), w); err != nil {
		slog.Error("render status page", "error", err)
	}
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		// The status page is self-contained: one inline stylesheet, no scripts.
		w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON with the given status.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
