package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/platinummonkey/portalauth/pkg/contextkeys"
	"github.com/platinummonkey/portalauth/pkg/directory"
	"github.com/platinummonkey/portalauth/pkg/observability"
	"github.com/sirupsen/logrus"
)

// CSRFPlaceholder is replaced with the session's CSRF token in served pages
const CSRFPlaceholder = "%XSRF_TOKEN%"

// DefaultCookieName is the session cookie name when none is configured
const DefaultCookieName = "portal.sid"

// Options configures a Manager
type Options struct {
	CookieName string
	Secret     []byte
	Secure     bool
	TTL        time.Duration
	Logger     logrus.FieldLogger
	Metrics    *observability.Metrics
}

// Manager loads, saves and tears down sessions
type Manager struct {
	store   Store
	opts    Options
	logger  logrus.FieldLogger
	metrics *observability.Metrics
}

// NewManager creates a session manager backed by store
func NewManager(store Store, opts Options) (*Manager, error) {
	if store == nil {
		return nil, errors.New("session: store is required")
	}
	if len(opts.Secret) == 0 {
		return nil, errors.New("session: signing secret is required")
	}
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	logger := opts.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}

	return &Manager{
		store:   store,
		opts:    opts,
		logger:  logger.WithField("component", "session"),
		metrics: opts.Metrics,
	}, nil
}

// CookieName returns the session cookie name
func (m *Manager) CookieName() string {
	return m.opts.CookieName
}

// Load resolves the session named by the request cookie. A missing,
// forged or expired cookie yields a fresh, unsaved session.
func (m *Manager) Load(r *http.Request) *Session {
	cookie, err := r.Cookie(m.opts.CookieName)
	if err != nil {
		return newSession()
	}

	id, err := verifyCookie(m.opts.Secret, cookie.Value)
	if err != nil {
		observability.FromContext(r.Context(), m.logger).Debug("Ignoring session cookie with bad signature")
		return newSession()
	}

	state, err := m.store.Get(r.Context(), id)
	m.metrics.ObserveSessionStore("get", ignoreNotFound(err))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			observability.FromContext(r.Context(), m.logger).WithError(err).Warn("Failed to load session")
		}
		return newSession()
	}

	return &Session{ID: id, State: *state}
}

func ignoreNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// Current returns the session attached by Middleware, loading one if the
// request did not pass through it.
func (m *Manager) Current(r *http.Request) *Session {
	if sess := FromContext(r.Context()); sess != nil {
		return sess
	}
	return m.Load(r)
}

// Middleware loads the session into the request context and saves it, if
// modified, just before the response headers are written.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := m.Load(r)
		r = r.WithContext(contextkeys.WithSession(r.Context(), sess))

		sw := &sessionWriter{ResponseWriter: w, manager: m, request: r, session: sess}
		next.ServeHTTP(sw, r)
		sw.commit()
	})
}

// IsAuthenticated reports whether the request's session carries a principal
func (m *Manager) IsAuthenticated(r *http.Request) bool {
	if r == nil {
		return false
	}
	return FromContext(r.Context()).Authenticated()
}

// CSRFToken returns the session's CSRF token, creating it on first use
func (m *Manager) CSRFToken(sess *Session) string {
	if sess.State.CSRFToken == "" {
		sess.State.CSRFToken = randomToken(csrfBytes)
		sess.dirty = true
	}
	return sess.State.CSRFToken
}

// RotateCSRFToken replaces the session's CSRF token
func (m *Manager) RotateCSRFToken(sess *Session) string {
	sess.State.CSRFToken = randomToken(csrfBytes)
	sess.dirty = true
	return sess.State.CSRFToken
}

// VerifyCSRFToken compares presented against the session token in constant
// time. A session without a token never verifies.
func (m *Manager) VerifyCSRFToken(sess *Session, presented string) bool {
	if sess == nil || sess.State.CSRFToken == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(sess.State.CSRFToken), []byte(presented)) == 1
}

// InjectCSRFToken substitutes the CSRF placeholder in body for authenticated
// sessions. Anonymous requests get body unchanged.
func (m *Manager) InjectCSRFToken(r *http.Request, body string) string {
	if !m.IsAuthenticated(r) {
		return body
	}
	token := m.CSRFToken(FromContext(r.Context()))
	return strings.ReplaceAll(body, CSRFPlaceholder, token)
}

// SetCaptcha stores the expected captcha answer
func (m *Manager) SetCaptcha(sess *Session, answer string) {
	sess.State.CaptchaAnswer = answer
	sess.dirty = true
}

// ConsumeCaptcha checks answer against the expected value. The expected
// value is rotated before the comparison whatever the outcome, so each
// challenge can be tried once.
func (m *Manager) ConsumeCaptcha(sess *Session, answer string) bool {
	expected := sess.State.CaptchaAnswer
	sess.State.CaptchaAnswer = randomToken(rotatedCaptchaBytes)
	sess.dirty = true

	if expected == "" || answer == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(answer)) == 1
}

// Login attaches user to the session under a new id, discarding the old one
// and issuing a fresh CSRF token, then saves it.
func (m *Manager) Login(ctx context.Context, w http.ResponseWriter, sess *Session, user *directory.User) error {
	if !sess.isNew {
		err := m.store.Delete(ctx, sess.ID)
		m.metrics.ObserveSessionStore("delete", err)
		if err != nil {
			observability.FromContext(ctx, m.logger).WithError(err).Warn("Failed to delete pre-login session")
		}
	}

	sess.ID = randomToken(idBytes)
	sess.isNew = true
	sess.State.User = user
	sess.State.OAuthState = ""
	m.RotateCSRFToken(sess)

	return m.Save(ctx, w, sess)
}

// Save persists the session and sets the cookie. It must be called before
// the response headers are written.
func (m *Manager) Save(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	err := m.store.Save(ctx, sess.ID, &sess.State, m.opts.TTL)
	m.metrics.ObserveSessionStore("save", err)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.opts.CookieName,
		Value:    signID(m.opts.Secret, sess.ID),
		Path:     "/",
		MaxAge:   int(m.opts.TTL.Seconds()),
		HttpOnly: true,
		Secure:   m.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	sess.dirty = false
	sess.isNew = false
	return nil
}

// Destroy deauthenticates the session, deletes it from the store, expires
// the cookie and redirects to target, in that order.
func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request, target string) {
	ctx := r.Context()
	if sess := FromContext(ctx); sess != nil {
		sess.State = State{}
		sess.destroyed = true
		if !sess.isNew {
			err := m.store.Delete(ctx, sess.ID)
			m.metrics.ObserveSessionStore("delete", err)
			if err != nil {
				observability.FromContext(ctx, m.logger).WithError(err).Error("Failed to delete session")
			}
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.opts.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   m.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, target, http.StatusFound)
}

// Logout destroys the session and redirects to the landing page
func (m *Manager) Logout(w http.ResponseWriter, r *http.Request) {
	m.Destroy(w, r, "/")
}

// sessionWriter saves a modified session before the first header write
type sessionWriter struct {
	http.ResponseWriter
	manager   *Manager
	request   *http.Request
	session   *Session
	committed bool
}

func (sw *sessionWriter) WriteHeader(code int) {
	sw.commit()
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *sessionWriter) Write(b []byte) (int, error) {
	sw.commit()
	return sw.ResponseWriter.Write(b)
}

func (sw *sessionWriter) commit() {
	if sw.committed {
		return
	}
	sw.committed = true

	if sw.session.destroyed || !sw.session.dirty {
		return
	}
	if err := sw.manager.Save(sw.request.Context(), sw.ResponseWriter, sw.session); err != nil {
		observability.FromContext(sw.request.Context(), sw.manager.logger).WithError(err).Error("Failed to save session")
	}
}
