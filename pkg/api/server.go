package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/warden-io/warden/pkg/contextkeys"
	"github.com/warden-io/warden/pkg/guard"
	"github.com/warden-io/warden/pkg/httputil"
	"github.com/warden-io/warden/pkg/ratelimit"
)

// actorHeader carries the acting identity on every admin request. The
// deployment's edge is expected to have authenticated the caller and
// set this header; the API enforces authorization, not authentication.
const actorHeader = "X-Warden-Handle"

// Server is the admin HTTP API over the guard, manager, and audit
// service.
type Server struct {
	router  *mux.Router
	guard   *guard.Guard
	manager *guard.Manager
	audits  *guard.AuditService
	limiter *ratelimit.Limiter
	log     logrus.FieldLogger
}

// NewServer creates the admin API server.
func NewServer(g *guard.Guard, manager *guard.Manager, audits *guard.AuditService, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Server{
		router:  mux.NewRouter(),
		guard:   g,
		manager: manager,
		audits:  audits,
		log:     log,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/audit", s.handleAuditList).Methods(http.MethodGet)
	api.HandleFunc("/audit/count", s.handleAuditCount).Methods(http.MethodGet)
	api.HandleFunc("/audit/export", s.handleAuditExport).Methods(http.MethodGet)
	api.HandleFunc("/audit/stats", s.handleAuditStats).Methods(http.MethodGet)

	api.HandleFunc("/actors/{handle}", s.handleActorGet).Methods(http.MethodGet)
	api.HandleFunc("/actors/{handle}/promote", s.handlePromote).Methods(http.MethodPost)
	api.HandleFunc("/actors/{handle}/demote", s.handleDemote).Methods(http.MethodPost)
	api.HandleFunc("/actors/{handle}/whitelist", s.handleWhitelistAdd).Methods(http.MethodPost)
	api.HandleFunc("/actors/{handle}/whitelist", s.handleWhitelistRemove).Methods(http.MethodDelete)
	api.HandleFunc("/actors/{handle}/audit", s.handleAuditPurge).Methods(http.MethodDelete)
}

// WithRateLimiter throttles requests per acting handle. Requests over
// the window limit get a 429; the limiter itself records the
// RATE_LIMIT_VIOLATION entry.
func (s *Server) WithRateLimiter(l *ratelimit.Limiter) *Server {
	s.limiter = l
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	var handler http.Handler = actorContext(s.router)
	if s.limiter != nil {
		handler = s.throttle(handler)
	}
	wrapped := httputil.Chain(
		httputil.RecoveryMiddleware(s.log),
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.log),
	)(handler)
	return otelhttp.NewHandler(wrapped, "warden.api")
}

// actorContext copies the acting handle into the request context so
// the logging middleware can include it.
func actorContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handle := r.Header.Get(actorHeader); handle != "" {
			r = r.WithContext(contextkeys.WithActorHandle(r.Context(), handle))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handle := r.Header.Get(actorHeader)
		if handle != "" {
			allowed, err := s.limiter.Allow(r.Context(), handle)
			if err == nil && !allowed {
				httputil.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// actingHandle extracts the acting identity, writing a 401 when the
// header is missing.
func (s *Server) actingHandle(w http.ResponseWriter, r *http.Request) (string, bool) {
	handle := r.Header.Get(actorHeader)
	if handle == "" {
		httputil.WriteError(w, http.StatusUnauthorized, "missing "+actorHeader+" header")
		return "", false
	}
	return handle, true
}
