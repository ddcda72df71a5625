package portal

import (
	"crypto/subtle"
	"html/template"
	"net/http"

	"github.com/platinummonkey/portalauth/pkg/audit"
	"github.com/platinummonkey/portalauth/pkg/httputil"
	"github.com/platinummonkey/portalauth/pkg/identity"
	"github.com/platinummonkey/portalauth/pkg/observability"
	"github.com/platinummonkey/portalauth/pkg/session"
)

const oauthStateBytes = 32

var landingTemplate = template.Must(template.New("landing").Parse(`<!DOCTYPE html>
<html>
<head><title>Portal</title></head>
<body>
<h1>Sign in</h1>
{{if .Local}}<form method="post" action="/public/auth/local">
<input name="username" placeholder="Username">
<input name="password" type="password" placeholder="Password">
<button type="submit">Sign in</button>
</form>
{{end}}{{range .Providers}}<p><a href="/public/auth/{{.}}">Sign in with {{.}}</a></p>
{{end}}</body>
</html>
`))

const defaultMainPage = `<!DOCTYPE html>
<html>
<head><title>Portal</title><meta name="xsrf-token" content="%XSRF_TOKEN%"></head>
<body><p>Signed in. <a href="/logout">Sign out</a></p></body>
</html>
`

// landing handles GET /
func (s *Server) landing(w http.ResponseWriter, r *http.Request) {
	data := struct {
		Local     bool
		Providers []string
	}{}
	for _, name := range s.opts.Registry.Names() {
		if _, ok := s.opts.Registry.OAuth(name); ok {
			data.Providers = append(data.Providers, name)
		}
	}
	_, data.Local = s.opts.Registry.Local()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := landingTemplate.Execute(w, data); err != nil {
		observability.FromContext(r.Context(), s.logger).WithError(err).Error("Failed to render landing page")
	}
}

// oauthLogin handles GET /public/auth/{provider}
func (s *Server) oauthLogin(w http.ResponseWriter, r *http.Request) {
	_, resolver, ok := s.oauthResolver(w, r)
	if !ok {
		return
	}

	sess := s.opts.Sessions.Current(r)
	state := session.NewToken(oauthStateBytes)
	sess.SetOAuthState(state)
	if err := s.opts.Sessions.Save(r.Context(), w, sess); err != nil {
		observability.FromContext(r.Context(), s.logger).WithError(err).Error("Failed to save oauth state")
		httputil.WriteInternalError(w)
		return
	}

	http.Redirect(w, r, resolver.LoginURL(state), http.StatusFound)
}

// oauthCallback handles GET /public/auth/{provider}/callback
func (s *Server) oauthCallback(w http.ResponseWriter, r *http.Request) {
	name, resolver, ok := s.oauthResolver(w, r)
	if !ok {
		return
	}
	logger := observability.FromContext(r.Context(), s.logger).WithField("provider", name)

	sess := s.opts.Sessions.Current(r)
	expected := sess.TakeOAuthState()
	presented := r.URL.Query().Get("state")
	if expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) != 1 {
		logger.Warn("OAuth callback with unknown state")
		s.loginFailed(w, r, name, "", "state mismatch")
		return
	}

	id, err := resolver.Callback(r.Context(), r)
	if err != nil {
		s.loginFailed(w, r, name, "", err.Error())
		return
	}
	s.completeLogin(w, r, sess, name, id)
}

// oauthResolver looks up the provider named in the path, answering 404 when
// it is not configured.
func (s *Server) oauthResolver(w http.ResponseWriter, r *http.Request) (string, identity.OAuthResolver, bool) {
	name, err := httputil.ParsePathString(r, "provider")
	if err != nil {
		http.NotFound(w, r)
		return "", nil, false
	}
	resolver, ok := s.opts.Registry.OAuth(name)
	if !ok {
		http.NotFound(w, r)
		return "", nil, false
	}
	return name, resolver, true
}

// localLogin handles POST /public/auth/local
func (s *Server) localLogin(w http.ResponseWriter, r *http.Request) {
	username := r.PostFormValue("username")
	resolver, ok := s.opts.Registry.Local()
	if !ok {
		s.loginFailed(w, r, "local", username, "local authentication disabled")
		return
	}

	id, err := resolver.Authenticate(r.Context(), username, r.PostFormValue("password"))
	if err != nil {
		s.loginFailed(w, r, resolver.Name(), username, err.Error())
		return
	}
	s.completeLogin(w, r, s.opts.Sessions.Current(r), resolver.Name(), id)
}

// completeLogin maps the identity to a directory user and rotates the
// session onto it.
func (s *Server) completeLogin(w http.ResponseWriter, r *http.Request, sess *session.Session, provider string, id *identity.Identity) {
	logger := observability.FromContext(r.Context(), s.logger).WithField("provider", provider)

	user, err := s.opts.Bridge.ResolveOrCreate(r.Context(), id.AccountID, id.GivenName, id.FamilyName, id.Email)
	if err != nil {
		logger.WithError(err).Error("Failed to resolve user")
		s.loginFailed(w, r, provider, "", "directory lookup failed")
		return
	}

	if err := s.opts.Sessions.Login(r.Context(), w, sess, user); err != nil {
		logger.WithError(err).Error("Failed to save login session")
		s.opts.Metrics.ObserveLogin(provider, false)
		s.record(r, audit.EventTypeAuthLoginFailed, audit.EventStatusFailure, func(e *audit.AuditEvent) {
			e.Provider = provider
			e.AccountID = user.AccountID
			e.Message = "session save failed"
		})
		httputil.WriteInternalError(w)
		return
	}

	s.opts.Metrics.ObserveLogin(provider, true)
	s.record(r, audit.EventTypeAuthLogin, audit.EventStatusSuccess, func(e *audit.AuditEvent) {
		e.Provider = provider
		e.AccountID = user.AccountID
	})
	logger.WithField("account_id", user.AccountID).Info("User logged in")
	http.Redirect(w, r, s.opts.PostLoginPath, http.StatusFound)
}

func (s *Server) loginFailed(w http.ResponseWriter, r *http.Request, provider, username, reason string) {
	s.opts.Metrics.ObserveLogin(provider, false)
	s.record(r, audit.EventTypeAuthLoginFailed, audit.EventStatusFailure, func(e *audit.AuditEvent) {
		e.Provider = provider
		e.Username = username
		e.Message = reason
	})
	http.Redirect(w, r, "/", http.StatusFound)
}

// logout handles /logout
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if sess := session.FromContext(r.Context()); sess.Authenticated() {
		s.record(r, audit.EventTypeAuthLogout, audit.EventStatusSuccess, func(e *audit.AuditEvent) {
			e.AccountID = sess.State.User.AccountID
		})
	}
	s.opts.Sessions.Logout(w, r)
}

func (s *Server) record(r *http.Request, eventType audit.EventType, status audit.EventStatus, fill func(*audit.AuditEvent)) {
	event := audit.NewEvent(r.Context(), r, eventType, status)
	fill(event)
	if err := s.opts.Audit.Log(r.Context(), event); err != nil {
		observability.FromContext(r.Context(), s.logger).WithError(err).Error("Failed to record audit event")
	}
}

// currentUser handles GET /api/user
func (s *Server) currentUser(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	if !sess.Authenticated() {
		httputil.WriteUnauthorized(w, http.StatusText(http.StatusUnauthorized))
		return
	}
	_ = httputil.WriteSuccess(w, sess.State.User)
}

// serveMain handles GET /main
func (s *Server) serveMain(w http.ResponseWriter, r *http.Request) {
	body := s.opts.Sessions.InjectCSRFToken(r, s.mainPage)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}
