// Package http exposes the JSON API under /api together with the health and
// metrics endpoints.
package http

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"poupanca/internal/auth"
	"poupanca/internal/log"
	"poupanca/internal/metrics"
	"poupanca/internal/middleware/ratelimit"
	"poupanca/internal/middleware/security"
	"poupanca/internal/middleware/trace"
	"poupanca/internal/services"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps is everything the handlers call into.
type Deps struct {
	Auth         *services.AuthService
	XP           *services.XPService
	Transactions *services.TransactionService
	Categories   *services.CategoryService
	Tokens       *auth.Tokens
	Store        Pinger
	Metrics      *metrics.Metrics
	Logger       *log.Logger

	RateLimitPerMinute int
	TrustedProxies     []string
}

type Server struct {
	http.Server
	auth     *services.AuthService
	xp       *services.XPService
	txs      *services.TransactionService
	cats     *services.CategoryService
	store    Pinger
	metrics  *metrics.Metrics
	logger   *log.Logger
	limiter  *ratelimit.Limiter
	detector *security.Detector
	started  time.Time

	shutdownOnce sync.Once
}

// NewServer wires the routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, deps Deps) (*Server, error) {
	detector, err := security.NewDetector(deps.TrustedProxies...)
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}

	s := &Server{
		auth:     deps.Auth,
		xp:       deps.XP,
		txs:      deps.Transactions,
		cats:     deps.Categories,
		store:    deps.Store,
		metrics:  deps.Metrics,
		logger:   logger.WithComponent(log.ComponentHTTP),
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: deps.RateLimitPerMinute}),
		detector: detector,
		started:  time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", s.metrics.Handler())

	mux.HandleFunc("GET /api/test", handleTest)
	mux.HandleFunc("POST /api/register", s.handleRegister)
	mux.HandleFunc("POST /api/login", s.handleLogin)

	protected := auth.Require(deps.Tokens, s.unauthorized)
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, protected(h))
	}

	handle("GET /api/profile", s.handleProfile)
	handle("PUT /api/profile", s.handleUpdateProfile)
	handle("DELETE /api/profile", s.handleDeleteProfile)

	handle("GET /api/user/xp", s.handleUserXP)
	handle("POST /api/user/daily-xp", s.handleDailyXP)
	handle("POST /api/user/recalculate-level", s.handleRecalculateLevel)
	handle("GET /api/user/achievements", s.handleAchievements)
	handle("GET /api/challenges", s.handleChallenges)
	handle("GET /api/rankings", s.handleRankings)

	handle("GET /api/categories", s.handleListCategories)
	handle("POST /api/categories", s.handleCreateCategory)
	handle("DELETE /api/categories/{id}", s.handleDeleteCategory)

	handle("GET /api/transactions", s.handleListTransactions)
	handle("POST /api/transactions", s.handleCreateTransaction)
	handle("GET /api/transactions/{id}", s.handleGetTransaction)
	handle("PUT /api/transactions/{id}", s.handleUpdateTransaction)
	handle("DELETE /api/transactions/{id}", s.handleDeleteTransaction)
	handle("GET /api/summary", s.handleSummary)

	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, msgResourceNotFound)
	})

	// Outermost first: request ID, scoped logger, access log, then the
	// hardening layers closest to the mux.
	var h http.Handler = mux
	h = s.limitAPI(h)
	h = s.detector.Middleware(h)
	h = security.Headers(security.DefaultHeadersConfig())(h)
	h = log.AccessLog(s.detector.ClientIP, s.observe)(h)
	h = log.Middleware(logger, trace.FromRequest)(h)
	h = trace.Middleware(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

// limitAPI rate-limits /api only; health checks and metrics scrapes are never throttled.
func (s *Server) limitAPI(next http.Handler) http.Handler {
	limited := s.limiter.Middleware(s.detector.ClientIP, s.rateLimited)(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			limited.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	writeError(w, http.StatusTooManyRequests, msgRateLimited)
}

func (s *Server) unauthorized(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusUnauthorized, msgUnauthorized)
}

// observe feeds the HTTP metrics. The route label is the matched mux
// pattern so path parameters never reach the label set.
func (s *Server) observe(r *http.Request, status int, d time.Duration) {
	route := r.Pattern
	if route == "" {
		route = "unmatched"
	}
	s.metrics.ObserveHTTP(r.Method, route, status, d)
}

// Shutdown gracefully shuts down the server and the limiter cleanup.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// Close stops background work without serving; for servers that never
// started listening.
func (s *Server) Close() error {
	s.limiter.Stop()
	return s.Server.Close()
}
