// Package http serves the ledger over a JSON API and a server-sent-events
// stream.
package http

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"wydatki/internal/core"
	"wydatki/internal/identity"
	"wydatki/internal/ledger"
	"wydatki/internal/log"
	"wydatki/internal/middleware/ratelimit"
	"wydatki/internal/middleware/security"
	"wydatki/internal/middleware/trace"
	"wydatki/internal/settings"
	"wydatki/internal/summary"
)

// Deps are the services the API exposes.
type Deps struct {
	Ledger   *ledger.Service
	Records  *ledger.RecordStore
	Settings *settings.Service
	Summary  *summary.Service
	Identity identity.Provider
	// Ping checks the data backend for /readyz. Nil means always ready.
	Ping   func(ctx context.Context) error
	Logger *log.Logger
}

type Server struct {
	http.Server
	deps   Deps
	logger *log.Logger

	rateLimiter *ratelimit.Limiter
	detector    *security.Detector
	tracer      *trace.Middleware

	started       time.Time
	activeStreams atomic.Int64
	expensesTotal atomic.Int64

	// heartbeat is the SSE keep-alive interval.
	heartbeat time.Duration
	// closing ends open streams on shutdown.
	closing chan struct{}

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = log.New(log.DefaultConfig())
	}
	if deps.Identity == nil {
		deps.Identity = identity.NewHeaderProvider("")
	}

	s := &Server{
		deps:        deps,
		logger:      deps.Logger.WithComponent(log.ComponentHTTP),
		rateLimiter: ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		detector:    security.NewDetector(),
		started:     time.Now(),
		heartbeat:   25 * time.Second,
		closing:     make(chan struct{}),
	}
	s.tracer = trace.NewMiddleware(deps.Logger, s.detector.ExtractClientIP)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /api/categories", s.withUser(s.handleCategories))
	mux.HandleFunc("GET /api/expenses", s.withUser(s.handleListExpenses))
	mux.HandleFunc("POST /api/expenses", s.withUser(s.handleCreateExpense))
	mux.HandleFunc("GET /api/expenses/{id}", s.withUser(s.handleGetExpense))
	mux.HandleFunc("PUT /api/expenses/{id}", s.withUser(s.handleUpdateExpense))
	mux.HandleFunc("DELETE /api/expenses/{id}", s.withUser(s.handleDeleteExpense))
	mux.HandleFunc("GET /api/settings", s.withUser(s.handleGetSettings))
	mux.HandleFunc("PUT /api/settings", s.withUser(s.handleSaveSettings))
	mux.HandleFunc("GET /api/summary", s.withUser(s.handleSummary))
	mux.HandleFunc("GET /api/stream", s.withUser(s.handleStream))

	limited := s.rateLimiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, s.detector.ExtractClientIP(r),
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path)
		TooManyRequestsError().Write(w)
	})(mux)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(limited)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.detector.Middleware(s.tracer.Middleware(headers)),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// userHandler is a handler that runs with a resolved owner id.
type userHandler func(w http.ResponseWriter, r *http.Request, ownerID string)

// withUser resolves the current user and answers 401 when there is none.
func (s *Server) withUser(next userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := s.deps.Identity.CurrentUserID(r)
		if !ok {
			s.writeError(w, r, core.ErrNotAuthenticated)
			return
		}
		next(w, r, ownerID)
	}
}

// writeError logs err at a level matching its status and writes the mapped
// error body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	logger := log.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed", log.FieldError, err, "code", code, log.FieldPath, r.URL.Path)
	} else {
		logger.DebugContext(r.Context(), "Request rejected", log.FieldError, err, "code", code, log.FieldPath, r.URL.Path)
	}
	ErrorResponse(err).Write(w)
}

// Shutdown stops background helpers and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		close(s.closing)
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
