// Package portal assembles the HTTP surface: routing, the middleware chain
// and the login flows that tie identity resolvers to sessions.
package portal

import (
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/portalauth/pkg/audit"
	"github.com/platinummonkey/portalauth/pkg/captcha"
	"github.com/platinummonkey/portalauth/pkg/credentials"
	"github.com/platinummonkey/portalauth/pkg/directory"
	"github.com/platinummonkey/portalauth/pkg/httputil"
	"github.com/platinummonkey/portalauth/pkg/identity"
	"github.com/platinummonkey/portalauth/pkg/middleware"
	"github.com/platinummonkey/portalauth/pkg/observability"
	"github.com/platinummonkey/portalauth/pkg/password"
	"github.com/platinummonkey/portalauth/pkg/registration"
	"github.com/platinummonkey/portalauth/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const defaultMaxBodyBytes = 1 << 20

// Options wires the portal's collaborators together. Credentials, Limiter,
// Health and Gatherer may be nil to disable the feature they back. A nil
// Audit discards audit events.
type Options struct {
	Sessions    *session.Manager
	Registry    *identity.Registry
	Bridge      *directory.Bridge
	Credentials *credentials.Store
	Hasher      password.Hasher

	Limiter      middleware.RateLimiter
	RateLimit    *middleware.RateLimitConfig
	Health       *observability.HealthChecker
	Metrics      *observability.Metrics
	Gatherer     prometheus.Gatherer
	Logger       logrus.FieldLogger
	Audit        audit.Logger
	MaxBodyBytes int64

	// TrustedProxies are the peers whose forwarding headers name the client.
	// Empty means every request is keyed on its socket address.
	TrustedProxies []*net.IPNet

	// PostLoginPath is where a successful login lands, "/main" when empty
	PostLoginPath string
	// MainPagePath is an HTML file served at /main; a built-in page is used
	// when empty
	MainPagePath string
}

// Server is the portal's http.Handler
type Server struct {
	opts     Options
	router   *mux.Router
	handler  http.Handler
	logger   logrus.FieldLogger
	mainPage string
}

// NewServer builds the router and middleware chain
func NewServer(opts Options) (*Server, error) {
	if opts.Sessions == nil || opts.Registry == nil || opts.Bridge == nil {
		return nil, fmt.Errorf("portal: sessions, registry and bridge are required")
	}
	if opts.Logger == nil {
		opts.Logger = observability.NopLogger()
	}
	if opts.Audit == nil {
		opts.Audit = audit.NopLogger{}
	}
	if opts.PostLoginPath == "" {
		opts.PostLoginPath = "/main"
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if opts.Hasher == nil {
		opts.Hasher = password.NewArgon2Hasher(password.DefaultParams)
	}

	s := &Server{
		opts:     opts,
		router:   mux.NewRouter(),
		logger:   opts.Logger,
		mainPage: defaultMainPage,
	}
	if opts.MainPagePath != "" {
		page, err := os.ReadFile(opts.MainPagePath)
		if err != nil {
			return nil, fmt.Errorf("portal: read main page: %w", err)
		}
		s.mainPage = string(page)
	}

	s.setupRoutes()

	gate := middleware.NewGatekeeper(opts.Sessions, nil, opts.Logger, opts.Metrics).WithAudit(opts.Audit)
	chain := []func(http.Handler) http.Handler{
		httputil.RealIPMiddleware(opts.TrustedProxies),
		httputil.RecoveryMiddleware(opts.Logger),
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(opts.Logger),
		observability.HTTPMetricsMiddleware(opts.Metrics),
		middleware.SecurityHeaders,
		httputil.MaxBytesMiddleware(opts.MaxBodyBytes),
	}
	if opts.Limiter != nil {
		chain = append(chain, middleware.RateLimit(opts.Limiter, opts.RateLimit, nil, opts.Logger, opts.Metrics))
	}
	chain = append(chain, opts.Sessions.Middleware, gate.Handler)

	s.handler = httputil.Chain(chain...)(s.router)
	return s, nil
}

// setupRoutes configures all the portal routes
func (s *Server) setupRoutes() {
	// Anonymous endpoints
	s.router.HandleFunc("/", s.landing).Methods(http.MethodGet)
	s.router.Handle("/captcha", captcha.NewIssuer(s.opts.Sessions, s.logger, s.opts.Metrics)).Methods(http.MethodGet)
	s.router.Handle("/api/register", registration.NewHandler(
		s.opts.Credentials, s.opts.Sessions, s.opts.Hasher, s.logger, s.opts.Metrics,
	).WithAudit(s.opts.Audit)).Methods(http.MethodPost)
	s.router.HandleFunc("/logout", s.logout).Methods(http.MethodGet, http.MethodPost)

	// Login flows
	s.router.HandleFunc("/public/auth/local", s.localLogin).Methods(http.MethodPost)
	s.router.HandleFunc("/public/auth/{provider}", s.oauthLogin).Methods(http.MethodGet)
	s.router.HandleFunc("/public/auth/{provider}/callback", s.oauthCallback).Methods(http.MethodGet)

	// Operations
	if s.opts.Health != nil {
		s.router.HandleFunc("/public/health/live", s.opts.Health.Liveness).Methods(http.MethodGet)
		s.router.HandleFunc("/public/health/ready", s.opts.Health.Readiness).Methods(http.MethodGet)
	}
	if s.opts.Gatherer != nil {
		s.router.Handle("/public/metrics", observability.MetricsHandler(s.opts.Gatherer)).Methods(http.MethodGet)
	}

	// Authenticated
	s.router.HandleFunc("/api/user", s.currentUser).Methods(http.MethodGet)
	s.router.HandleFunc("/main", s.serveMain).Methods(http.MethodGet)
}

// Router exposes the router so callers can mount extra routes
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
