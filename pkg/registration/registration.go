// Package registration implements local account self-registration.
package registration

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"

	"github.com/platinummonkey/portalauth/pkg/audit"
	"github.com/platinummonkey/portalauth/pkg/credentials"
	"github.com/platinummonkey/portalauth/pkg/httputil"
	"github.com/platinummonkey/portalauth/pkg/observability"
	"github.com/platinummonkey/portalauth/pkg/password"
	"github.com/platinummonkey/portalauth/pkg/session"
	"github.com/sirupsen/logrus"
)

// Rejection reasons, returned verbatim to the client
const (
	ReasonLocalDisabled    = "Local authentication is not enabled"
	ReasonMissingNewUser   = "Invalid request.'newUser' not defined."
	ReasonInvalidUsername  = "Invalid username."
	ReasonUsernameTaken    = "Username already taken."
	ReasonMissingPassword  = "Invalid request. 'password' not defined."
	ReasonWeakPassword     = "Password too weak."
	ReasonInvalidGivenName = "Invalid givenName."
	ReasonInvalidFamily    = "Invalid familyName."
	ReasonInvalidCaptcha   = "Invalid captcha."

	// MessageCreated is the success message
	MessageCreated = "User created."

	minPasswordLength = 8
)

var (
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)
	namePattern     = regexp.MustCompile(`(?i)^[A-Z'\-\s]+$`)
	lowerPattern    = regexp.MustCompile(`[a-z]`)
	upperPattern    = regexp.MustCompile(`[A-Z]`)
	digitPattern    = regexp.MustCompile(`\d`)
)

// ValidationError is a rejected registration. Reason is safe to show.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "registration rejected: " + e.Reason
}

func reject(reason string) error {
	return &ValidationError{Reason: reason}
}

// NewUser is the registration form. Pointers distinguish absent fields.
type NewUser struct {
	Username   *string `json:"username"`
	Password   *string `json:"password"`
	GivenName  *string `json:"givenName"`
	FamilyName *string `json:"familyName"`
	Captcha    *string `json:"captcha"`
}

// Request is the body of POST /api/register
type Request struct {
	NewUser *NewUser `json:"newUser"`
}

// Handler serves POST /api/register
type Handler struct {
	store    *credentials.Store
	sessions *session.Manager
	hasher   password.Hasher
	logger   logrus.FieldLogger
	metrics  *observability.Metrics
	auditor  audit.Logger
}

// NewHandler creates the registration handler. A nil store means local
// authentication is disabled and every request is rejected.
func NewHandler(store *credentials.Store, sessions *session.Manager, hasher password.Hasher, logger logrus.FieldLogger, metrics *observability.Metrics) *Handler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Handler{
		store:    store,
		sessions: sessions,
		hasher:   hasher,
		logger:   logger.WithField("component", "registration"),
		metrics:  metrics,
		auditor:  audit.NopLogger{},
	}
}

// WithAudit records every registration outcome to auditor
func (h *Handler) WithAudit(auditor audit.Logger) *Handler {
	if auditor != nil {
		h.auditor = auditor
	}
	return h
}

// ServeHTTP decodes the request and answers with the api response shape
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := observability.FromContext(r.Context(), h.logger)

	var req Request
	if err := httputil.ParseJSON(r, &req); err != nil {
		logger.WithError(err).Debug("Unreadable registration body")
		req = Request{}
	}

	err := h.Register(r.Context(), w, h.sessions.Current(r), &req)
	h.metrics.ObserveRegistration(err == nil)
	h.record(r, &req, err)

	var verr *ValidationError
	switch {
	case err == nil:
		httputil.WriteOK(w, MessageCreated)
	case errors.As(err, &verr):
		logger.WithField("reason", verr.Reason).Info("Registration rejected")
		httputil.WriteBadRequest(w, verr.Reason)
	default:
		logger.WithError(err).Error("Registration failed")
		httputil.WriteInternalError(w)
	}
}

func (h *Handler) record(r *http.Request, req *Request, err error) {
	event := audit.NewEvent(r.Context(), r, audit.EventTypeAuthRegister, audit.EventStatusSuccess)
	event.Provider = "local"
	if req.NewUser != nil && req.NewUser.Username != nil {
		event.Username = *req.NewUser.Username
	}
	var verr *ValidationError
	switch {
	case err == nil:
		event.Message = MessageCreated
	case errors.As(err, &verr):
		event.EventType = audit.EventTypeAuthRegisterFailed
		event.Status = audit.EventStatusFailure
		event.Message = verr.Reason
	default:
		event.EventType = audit.EventTypeAuthRegisterFailed
		event.Status = audit.EventStatusFailure
		event.Message = "internal error"
	}
	if lerr := h.auditor.Log(r.Context(), event); lerr != nil {
		observability.FromContext(r.Context(), h.logger).WithError(lerr).Error("Failed to record audit event")
	}
}

// Register validates req and creates the account. Checks run in a fixed
// order and the first failure is returned as a *ValidationError. Nothing is
// written unless every check passes. The session's captcha answer is rotated
// and saved as soon as the captcha step is reached.
func (h *Handler) Register(ctx context.Context, w http.ResponseWriter, sess *session.Session, req *Request) error {
	if h.store == nil {
		return reject(ReasonLocalDisabled)
	}

	nu := req.NewUser
	if nu == nil {
		return reject(ReasonMissingNewUser)
	}

	if nu.Username == nil || !usernamePattern.MatchString(*nu.Username) {
		return reject(ReasonInvalidUsername)
	}
	username := *nu.Username
	if h.store.Exists(username) {
		return reject(ReasonUsernameTaken)
	}

	if nu.Password == nil {
		return reject(ReasonMissingPassword)
	}
	if !StrongPassword(*nu.Password) {
		return reject(ReasonWeakPassword)
	}

	if nu.GivenName == nil || !namePattern.MatchString(*nu.GivenName) {
		return reject(ReasonInvalidGivenName)
	}
	if nu.FamilyName == nil || !namePattern.MatchString(*nu.FamilyName) {
		return reject(ReasonInvalidFamily)
	}

	var answer string
	if nu.Captcha != nil {
		answer = *nu.Captcha
	}
	solved := h.sessions.ConsumeCaptcha(sess, answer)
	if err := h.sessions.Save(ctx, w, sess); err != nil {
		return fmt.Errorf("save session after captcha: %w", err)
	}
	if !solved {
		return reject(ReasonInvalidCaptcha)
	}

	salt, err := password.NewSalt()
	if err != nil {
		return err
	}

	err = h.store.Add(username, credentials.Entry{
		GivenName:  *nu.GivenName,
		FamilyName: *nu.FamilyName,
		PassHash:   h.hasher.Hash(*nu.Password, salt),
		PassSalt:   salt,
	})
	if errors.Is(err, credentials.ErrUsernameTaken) {
		return reject(ReasonUsernameTaken)
	}
	if err != nil {
		return fmt.Errorf("store user: %w", err)
	}

	observability.FromContext(ctx, h.logger).WithField("username", username).Info("Local user created")
	return nil
}

// StrongPassword applies the local password policy
func StrongPassword(p string) bool {
	return len([]rune(p)) >= minPasswordLength &&
		lowerPattern.MatchString(p) &&
		upperPattern.MatchString(p) &&
		digitPattern.MatchString(p)
}
