package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"savings/internal/log"
	"savings/internal/middleware/ratelimit"
	"savings/internal/middleware/security"
	"savings/internal/middleware/trace"
	"savings/internal/services"
	"savings/internal/store"
)

const readyTimeout = 3 * time.Second

// Runner triggers one reconciliation run. Implemented by *worker.Scheduler.
type Runner interface {
	RunOnce(ctx context.Context) (services.Summary, error)
	LastSummary() (services.Summary, bool)
}

// Deps are the collaborators the ops surface reads from. Pinger may be nil.
type Deps struct {
	Runner Runner
	Users  store.UserStore
	Ledger store.LedgerStore
	Pinger store.Pinger
}

type Server struct {
	http.Server
	deps    Deps
	logger  *log.Logger
	limiter *ratelimit.Limiter

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, deps Deps, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.FromSlog(nil, log.ComponentHTTP)
	}
	mux := http.NewServeMux()
	ips := security.NewClientIPResolver()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
		},
		deps:    deps,
		logger:  logger,
		limiter: ratelimit.NewLimiter(ratelimit.DefaultConfig()),
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("POST /reconcile", s.limiter.Middleware(ips.ClientIP)(http.HandlerFunc(s.handleReconcile)))
	mux.HandleFunc("GET /reconcile/last", s.handleLastRun)
	mux.HandleFunc("GET /users/{id}/savings", s.handleUserSavings)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	tracer := trace.NewMiddleware(logger, ips.ClientIP)
	s.Handler = headers.Middleware(tracer.Middleware(mux))

	return s
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
