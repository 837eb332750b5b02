package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jonathan/newscaster/internal/db"
	"github.com/jonathan/newscaster/internal/logging"
	"github.com/jonathan/newscaster/internal/observability"
	"github.com/jonathan/newscaster/internal/pipeline"
	"github.com/jonathan/newscaster/internal/server/middleware"
	"github.com/jonathan/newscaster/internal/server/ratelimit"
)

// PostReader is the read side of the post store plus its health check.
type PostReader interface {
	ListPosts(ctx context.Context, filters db.PostFilters) ([]db.Post, error)
	GetPost(ctx context.Context, id uuid.UUID) (*db.Post, error)
	Ping(ctx context.Context) error
}

// Runner starts a pipeline run in the background.
type Runner interface {
	Start(ctx context.Context) (*pipeline.RunHandle, error)
}

// Config holds server configuration
type Config struct {
	Addr string
	// AdminToken guards POST /run; empty leaves it open.
	AdminToken string
	// RateLimit nil disables rate limiting.
	RateLimit *ratelimit.Config
	// BaseContext bounds runs started over HTTP; they outlive the request.
	BaseContext context.Context
	Logger      *logrus.Logger
	Metrics     *observability.Metrics
	// Hub receives the runner's progress events; nil creates one.
	Hub *Hub
}

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	posts       PostReader
	runner      Runner
	hub         *Hub
	metrics     *observability.Metrics
	rateLimiter *ratelimit.Limiter
	logger      *logrus.Logger
	baseCtx     context.Context
	adminToken  string
	runs        *runRegistry
}

// New creates a new server instance
func New(cfg Config, posts PostReader, runner Runner) *Server {
	s := &Server{
		posts:       posts,
		runner:      runner,
		hub:         cfg.Hub,
		metrics:     cfg.Metrics,
		rateLimiter: ratelimit.NewLimiter(cfg.RateLimit),
		logger:      cfg.Logger,
		baseCtx:     cfg.BaseContext,
		adminToken:  cfg.AdminToken,
		runs:        newRunRegistry(maxTrackedRuns),
	}
	if s.hub == nil {
		s.hub = NewHub()
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	if s.baseCtx == nil {
		s.baseCtx = context.Background()
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// no WriteTimeout: /events streams for as long as the client listens
		IdleTimeout: 60 * time.Second,
	}
	return s
}

// Hub returns the event hub whose Publish should be the runner's progress
// callback.
func (s *Server) Hub() *Hub { return s.hub }

// Handler builds the routed and wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	mux.HandleFunc("GET /posts", s.handleListPosts)
	mux.HandleFunc("GET /posts/{id}", s.handleGetPost)
	mux.Handle("POST /run", middleware.RequireBearer(s.adminToken)(http.HandlerFunc(s.handleRun)))
	mux.HandleFunc("GET /runs/{id}", s.handleRunStatus)
	mux.HandleFunc("GET /events", s.handleEvents)

	return s.withRateLimit(s.withLogging(mux))
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer s.rateLimiter.Stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", ln.Addr().String()).Info("http server listening")
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

// statusRecorder captures the response status for the access log. It keeps
// Flush reachable so /events can stream through it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.WithFields(logging.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"remote":      clientID(r),
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("http request")
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(clientID(r), r.URL.Path, r.Method)
		if info.Limit > 0 {
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		}
		if !allowed {
			retry := int(info.RetryAfter.Seconds() + 0.5)
			if retry < 1 {
				retry = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			s.logger.WithFields(logging.Fields{
				"path":   r.URL.Path,
				"remote": clientID(r),
				"limit":  info.Limit,
			}).Warn("rate limit exceeded")
			s.jsonResponse(w, http.StatusTooManyRequests, map[string]any{
				"error":       "rate_limit_exceeded",
				"retry_after": retry,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientID uses the IP from RemoteAddr. Forwarded headers are ignored since
// they are client-controlled without a trusted proxy.
func clientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("encode JSON response")
	}
}

// errorResponse maps err to a status with HTTPStatus. Internal errors are
// logged and not echoed to the client.
func (s *Server) errorResponse(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.WithError(err).Error("request failed")
		msg = "internal error"
	}
	s.jsonResponse(w, status, map[string]string{"error": msg})
}

const maxTrackedRuns = 20

// runRegistry remembers the most recent runs started over HTTP.
type runRegistry struct {
	mu    sync.Mutex
	max   int
	order []string
	runs  map[string]*trackedRun
}

type trackedRun struct {
	handle    *pipeline.RunHandle
	startedAt time.Time
}

func newRunRegistry(max int) *runRegistry {
	return &runRegistry{max: max, runs: make(map[string]*trackedRun)}
}

func (r *runRegistry) add(h *pipeline.RunHandle, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[h.ID] = &trackedRun{handle: h, startedAt: at}
	r.order = append(r.order, h.ID)
	for len(r.order) > r.max {
		delete(r.runs, r.order[0])
		r.order = r.order[1:]
	}
}

func (r *runRegistry) get(id string) (*trackedRun, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.runs[id]
	return t, ok
}
