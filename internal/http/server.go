package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"shoplist/internal/log"
	"shoplist/internal/middleware/ratelimit"
	"shoplist/internal/middleware/security"
	"shoplist/internal/middleware/trace"
	"shoplist/internal/services"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the server beyond its services.
type Options struct {
	RateLimitRPM int
	// TrustedProxies are CIDRs, beyond loopback and private ranges, whose
	// forwarding headers are honoured.
	TrustedProxies []string
	Logger         *log.Logger
	// Checks are named readiness checks, e.g. "storage" or "amqp".
	Checks map[string]Pinger
}

type Server struct {
	http.Server

	lists *services.ListService
	users *services.UserService

	logger           *log.Logger
	checks           map[string]Pinger
	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	started          time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, lists *services.ListService, users *services.UserService, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		lists:            lists,
		users:            users,
		logger:           logger,
		checks:           opts.Checks,
		securityDetector: security.NewDetector(),
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.RateLimitRPM,
		}),
		started: time.Now(),
	}
	for _, cidr := range opts.TrustedProxies {
		if err := s.securityDetector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", log.FieldError, err)
		}
	}
	s.traceMiddleware = trace.NewMiddleware(logger, s.securityDetector.ExtractClientIP)

	mux := http.NewServeMux()
	s.routes(mux)

	var handler http.Handler = mux
	handler = s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, writeRateLimited)(handler)
	handler = s.securityDetector.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("POST /users", s.handleCreateUser)
	mux.HandleFunc("GET /users/{id}", s.handleGetUser)
	mux.HandleFunc("GET /users", s.handleFindUser)
	mux.HandleFunc("GET /users/{id}/history", s.handleUserHistory)
	mux.Handle("GET /users/{id}/alert-preferences", s.authed(s.handleGetAlertPreferences))
	mux.Handle("PUT /users/{id}/alert-preferences", s.authed(s.handleUpdateAlertPreferences))

	mux.Handle("GET /lists", s.authed(s.handleListLists))
	mux.Handle("POST /lists", s.authed(s.handleCreateList))
	mux.Handle("GET /lists/{id}", s.authed(s.handleGetList))
	mux.Handle("PUT /lists/{id}", s.authed(s.handleUpdateList))
	mux.Handle("DELETE /lists/{id}", s.authed(s.handleDeleteList))
	mux.Handle("GET /lists/{id}/summary", s.authed(s.handleListSummary))
	mux.Handle("GET /lists/{id}/categories", s.authed(s.handleListCategories))
	mux.Handle("POST /lists/{id}/recompute", s.authed(s.handleRecompute))
	mux.Handle("GET /lists/{id}/recommendations", s.authed(s.handleRecommendations))
	mux.Handle("GET /lists/{id}/recommendations/snapshots", s.authed(s.handleSnapshots))
	mux.Handle("GET /lists/{id}/alerts", s.authed(s.handleAlerts))
	mux.Handle("POST /lists/{id}/alerts/ack", s.authed(s.handleAcknowledgeAlert))
	mux.Handle("GET /lists/{id}/items", s.authed(s.handleListItems))

	mux.Handle("GET /items", s.authed(s.handleListItemsByQuery))
	mux.Handle("POST /items", s.authed(s.handleCreateItem))
	mux.Handle("GET /items/{id}", s.authed(s.handleGetItem))
	mux.Handle("PUT /items/{id}", s.authed(s.handleUpdateItem))
	mux.Handle("DELETE /items/{id}", s.authed(s.handleDeleteItem))
}

// authedHandler receives the authenticated caller's id.
type authedHandler func(w http.ResponseWriter, r *http.Request, actor int64)

// authed resolves X-User-ID to a known user before calling next.
func (s *Server) authed(next authedHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := callerID(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		u, err := s.users.Authenticate(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}

		ctx := log.WithLogger(r.Context(), log.FromContext(r.Context()).With(log.FieldUserID, u.ID))
		next(w, r.WithContext(ctx), u.ID)
	})
}

// Shutdown stops background housekeeping and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
