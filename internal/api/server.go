// Package api serves the worker's inbound HTTP interface: job submission,
// status inspection and WorkerEvent abort.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/roach88/testworker/internal/domain"
	"github.com/roach88/testworker/internal/progress"
	"github.com/roach88/testworker/internal/workflow"
)

// maxBodyBytes bounds a job submission including its source bundle.
const maxBodyBytes = 32 << 20

// Submitter accepts job submissions.
type Submitter interface {
	Submit(ctx context.Context, sub workflow.Submission) (domain.Job, error)
}

// Repository is the read side the status routes need.
type Repository interface {
	FindJob(ctx context.Context) (domain.Job, bool, error)
	Sources(ctx context.Context) ([]domain.Source, error)
	Tests(ctx context.Context) ([]domain.Test, error)
	SequenceNumbers(ctx context.Context) ([]int64, error)
	GetWorkerEvent(ctx context.Context, seq int64) (domain.WorkerEvent, error)
}

// StateReader snapshots the progress calculators.
type StateReader interface {
	Snapshot(ctx context.Context) (progress.Snapshot, error)
}

// EventAborter fails a WorkerEvent that has not been delivered yet.
type EventAborter interface {
	Fail(ctx context.Context, seq int64) (domain.WorkerEvent, bool, error)
}

// Server routes the inbound API.
type Server struct {
	router    chi.Router
	intake    Submitter
	repo      Repository
	state     StateReader
	aborter   EventAborter
	validator *Validator
	metrics   http.Handler
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithMetricsHandler mounts h at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithRateLimit limits all routes to limit requests per second with the
// given burst. A non-positive limit disables limiting.
func WithRateLimit(limit float64, burst int) Option {
	return func(s *Server) {
		if limit <= 0 {
			s.limiter = nil
			return
		}
		s.limiter = rate.NewLimiter(rate.Limit(limit), burst)
	}
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer builds the router.
func NewServer(intake Submitter, repo Repository, state StateReader, aborter EventAborter, opts ...Option) (*Server, error) {
	validator, err := NewJobValidator()
	if err != nil {
		return nil, err
	}
	s := &Server{
		intake:    intake,
		repo:      repo,
		state:     state,
		aborter:   aborter,
		validator: validator,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if s.limiter != nil {
		r.Use(rateLimit(s.limiter))
	}

	r.Get("/health", s.health)
	r.Post("/job", s.submitJob)
	r.Get("/job", s.jobStatus)
	r.Get("/application-state", s.applicationState)
	r.Get("/event/{sequence_number}", s.getEvent)
	r.Post("/event/{sequence_number}/abort", s.abortEvent)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

func rateLimit(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				respondError(w, &Error{
					Status:  http.StatusTooManyRequests,
					Code:    CodeRateLimited,
					Message: "too many requests",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("api request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
	)
	respondError(w, &Error{
		Status:  http.StatusInternalServerError,
		Code:    CodeInternal,
		Message: "internal error",
	})
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, *Error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &Error{
				Status:  http.StatusRequestEntityTooLarge,
				Code:    CodeInvalidRequest,
				Message: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
			}
		}
		return nil, &Error{Status: http.StatusBadRequest, Code: CodeInvalidRequest, Message: "unreadable request body"}
	}
	return body, nil
}

func sequenceParam(r *http.Request) (int64, *Error) {
	raw := chi.URLParam(r, "sequence_number")
	seq, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || seq <= 0 {
		return 0, &Error{
			Status:  http.StatusBadRequest,
			Code:    CodeInvalidRequest,
			Message: fmt.Sprintf("invalid sequence number %q", raw),
		}
	}
	return seq, nil
}
