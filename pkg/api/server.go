package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"

	"github.com/quillnote/quill/pkg/audit"
	"github.com/quillnote/quill/pkg/auth"
	"github.com/quillnote/quill/pkg/httputil"
	"github.com/quillnote/quill/pkg/middleware"
	"github.com/quillnote/quill/pkg/notes"
	"github.com/quillnote/quill/pkg/observability"
	"github.com/quillnote/quill/pkg/rbac"
	"github.com/quillnote/quill/pkg/spaces"
	"github.com/quillnote/quill/pkg/topics"
)

// maxBodyBytes caps request bodies; note text tops out at 10k runes, so
// 1 MiB leaves ample headroom for tags and encoding overhead.
const maxBodyBytes = 1 << 20

// AuditLister lists the audit trail for a space.
type AuditLister interface {
	ListBySpace(ctx context.Context, spaceID int64, limit, offset int) ([]audit.Entry, error)
}

// Deps carries everything the server needs. Audit and Metrics are
// optional; nil disables the corresponding routes or instrumentation.
type Deps struct {
	Auth     *auth.Store
	Spaces   *spaces.Service
	Topics   *topics.Service
	Notes    *notes.Service
	Resolver rbac.PermissionResolver
	Audit    AuditLister
	Metrics  *observability.Metrics
	Logger   *observability.Logger

	// Redis switches rate limiting to the distributed limiter so limits
	// hold across instances; nil uses the in-memory limiter.
	Redis *redis.Client

	// AllowedOrigins configures CORS; empty disables cross-origin access.
	AllowedOrigins []string

	// TokenTTL is applied to every issued token; zero issues
	// non-expiring tokens.
	TokenTTL time.Duration
}

// Server is the assembled HTTP handler.
type Server struct {
	router *mux.Router
	logger *observability.Logger
}

// NewServer builds the router and middleware chain.
func NewServer(deps Deps) *Server {
	s := &Server{
		router: mux.NewRouter(),
		logger: deps.Logger,
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(httputil.RecoveryMiddleware(deps.Logger))
	if len(deps.AllowedOrigins) > 0 {
		s.router.Use(httputil.CORSMiddleware(deps.AllowedOrigins))
	}
	s.router.Use(httputil.MaxBytesMiddleware(maxBodyBytes))
	if deps.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(deps.Metrics))
	}

	var rateLimit mux.MiddlewareFunc
	if deps.Redis != nil {
		rateLimit = middleware.NewDistributedRateLimitMiddleware(deps.Redis).Handler
	} else {
		rateLimit = middleware.NewRateLimitMiddleware().Handler
	}
	authMW := middleware.NewAuthMiddleware(deps.Auth, false)

	authHandlers := NewAuthHandlers(deps.Auth, deps.TokenTTL)

	// Registration and token issuance are reachable without a token,
	// rate limited per client IP.
	public := s.router.PathPrefix("/api/v1/auth").Subrouter()
	public.Use(rateLimit)
	authHandlers.RegisterPublicRoutes(public)

	// Everything else requires a bearer token. Authentication runs
	// before rate limiting so limits key on the user, not the IP.
	protected := s.router.PathPrefix("/api/v1").Subrouter()
	protected.Use(authMW.Handler)
	protected.Use(rateLimit)

	authHandlers.RegisterRoutes(protected)
	spaces.NewHandlers(deps.Spaces).RegisterRoutes(protected)
	topics.NewHandlers(deps.Topics).RegisterRoutes(protected)
	notes.NewHandlers(deps.Notes).RegisterRoutes(protected)

	if deps.Audit != nil {
		NewAuditHandlers(deps.Audit, deps.Resolver).RegisterRoutes(protected)
	}

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router exposes the underlying router for additional registrations.
func (s *Server) Router() *mux.Router {
	return s.router
}
