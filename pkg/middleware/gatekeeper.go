package middleware

import (
	"net/http"
	"strings"

	"github.com/platinummonkey/portalauth/pkg/audit"
	"github.com/platinummonkey/portalauth/pkg/contextkeys"
	"github.com/platinummonkey/portalauth/pkg/httputil"
	"github.com/platinummonkey/portalauth/pkg/observability"
	"github.com/platinummonkey/portalauth/pkg/session"
	"github.com/sirupsen/logrus"
)

// CSRFHeader carries the session's CSRF token on API calls
const CSRFHeader = "xsrftoken"

// Tier is the protection level of a path
type Tier int

const (
	// TierPublic needs nothing
	TierPublic Tier = iota
	// TierAPI needs an authenticated session and a matching CSRF header
	TierAPI
	// TierSession needs an authenticated session
	TierSession
)

func (t Tier) String() string {
	switch t {
	case TierPublic:
		return "public"
	case TierAPI:
		return "api"
	default:
		return "session"
	}
}

// DefaultExemptPaths are served to anonymous users even though they fall
// outside the public prefix.
var DefaultExemptPaths = []string{"/captcha", "/api/register", "/logout"}

// Gatekeeper decides, per request, whether it may proceed
type Gatekeeper struct {
	sessions *session.Manager
	exempt   map[string]struct{}
	logger   logrus.FieldLogger
	metrics  *observability.Metrics
	auditor  audit.Logger
}

// NewGatekeeper creates a gatekeeper. exempt lists exact paths treated as
// public; nil means DefaultExemptPaths.
func NewGatekeeper(sessions *session.Manager, exempt []string, logger logrus.FieldLogger, metrics *observability.Metrics) *Gatekeeper {
	if exempt == nil {
		exempt = DefaultExemptPaths
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	g := &Gatekeeper{
		sessions: sessions,
		exempt:   make(map[string]struct{}, len(exempt)),
		logger:   logger,
		metrics:  metrics,
		auditor:  audit.NopLogger{},
	}
	for _, p := range exempt {
		g.exempt[p] = struct{}{}
	}
	return g
}

// WithAudit records denied API calls to auditor
func (g *Gatekeeper) WithAudit(auditor audit.Logger) *Gatekeeper {
	if auditor != nil {
		g.auditor = auditor
	}
	return g
}

// Classify maps a request path to its tier
func (g *Gatekeeper) Classify(path string) Tier {
	if IsPublicPath(path) {
		return TierPublic
	}
	if _, ok := g.exempt[path]; ok {
		return TierPublic
	}
	if path == "/api" || strings.HasPrefix(path, "/api/") {
		return TierAPI
	}
	return TierSession
}

// IsPublicPath reports whether path is the landing page or under /public
func IsPublicPath(path string) bool {
	return path == "/" || path == "/public" || strings.HasPrefix(path, "/public/")
}

// Handler enforces the tier of each request. It must run inside
// session.Manager.Middleware.
func (g *Gatekeeper) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tier := g.Classify(r.URL.Path)
		if tier == TierPublic {
			g.metrics.ObserveGatekeeper(tier.String(), "allowed")
			next.ServeHTTP(w, r)
			return
		}

		logger := observability.FromContext(r.Context(), g.logger).WithField("tier", tier.String())
		sess := session.FromContext(r.Context())

		switch {
		case tier == TierAPI && !sess.Authenticated():
			logger.Debug("API call without session")
			g.metrics.ObserveGatekeeper(tier.String(), "denied")
			httputil.WriteUnauthorized(w, http.StatusText(http.StatusUnauthorized))
			return
		case tier == TierAPI && !g.sessions.VerifyCSRFToken(sess, r.Header.Get(CSRFHeader)):
			logger.Warn("API call with missing or mismatched CSRF token")
			g.metrics.ObserveGatekeeper(tier.String(), "denied")
			g.recordDenied(r, sess, "CSRF token mismatch")
			httputil.WriteUnauthorized(w, http.StatusText(http.StatusUnauthorized))
			return
		case tier == TierSession && !sess.Authenticated():
			logger.Debug("Unauthenticated request redirected")
			g.metrics.ObserveGatekeeper(tier.String(), "redirected")
			g.sessions.Destroy(w, r, "/")
			return
		}

		g.metrics.ObserveGatekeeper(tier.String(), "allowed")
		ctx := contextkeys.WithAccountID(r.Context(), sess.State.User.AccountID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (g *Gatekeeper) recordDenied(r *http.Request, sess *session.Session, message string) {
	event := audit.NewEvent(r.Context(), r, audit.EventTypeAuthzAccessDenied, audit.EventStatusDenied)
	event.AccountID = sess.State.User.AccountID
	event.Message = message
	if err := g.auditor.Log(r.Context(), event); err != nil {
		observability.FromContext(r.Context(), g.logger).WithError(err).Error("Failed to record audit event")
	}
}
