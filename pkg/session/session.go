// Package session implements server-side sessions carried by a signed
// cookie, together with the per-session CSRF token and captcha answer.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/platinummonkey/portalauth/pkg/contextkeys"
	"github.com/platinummonkey/portalauth/pkg/directory"
)

const (
	idBytes   = 32
	csrfBytes = 64
	// captcha answers are rotated to a value that can never equal a
	// four digit challenge
	rotatedCaptchaBytes = 6
)

// State is the data persisted for a session
type State struct {
	User          *directory.User `json:"user,omitempty"`
	CSRFToken     string          `json:"csrfToken,omitempty"`
	CaptchaAnswer string          `json:"captchaAnswer,omitempty"`
	OAuthState    string          `json:"oauthState,omitempty"`
}

// clone returns a deep copy so stores never share the principal pointer with
// a live request.
func (s State) clone() State {
	if s.User != nil {
		u := *s.User
		if u.TeamID != nil {
			team := *u.TeamID
			u.TeamID = &team
		}
		s.User = &u
	}
	return s
}

// Session is the request-scoped view of a stored session. It is not safe for
// concurrent use; each request gets its own copy.
type Session struct {
	ID    string
	State State

	isNew     bool
	dirty     bool
	destroyed bool
}

func newSession() *Session {
	return &Session{ID: randomToken(idBytes), isNew: true}
}

// IsNew reports whether the session has never been persisted
func (s *Session) IsNew() bool { return s.isNew }

// Authenticated reports whether a principal is attached
func (s *Session) Authenticated() bool {
	return s != nil && s.State.User != nil && s.State.User.AccountID != ""
}

// MarkDirty schedules the session to be saved before the response is sent
func (s *Session) MarkDirty() { s.dirty = true }

// SetOAuthState records the state parameter of a pending OAuth login
func (s *Session) SetOAuthState(state string) {
	s.State.OAuthState = state
	s.dirty = true
}

// TakeOAuthState returns and clears the pending OAuth state
func (s *Session) TakeOAuthState() string {
	state := s.State.OAuthState
	if state != "" {
		s.State.OAuthState = ""
		s.dirty = true
	}
	return state
}

// FromContext returns the session loaded by Manager.Middleware, or nil
func FromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(contextkeys.SessionKey).(*Session)
	return sess
}

// NewToken returns n random bytes, base64url encoded without padding
func NewToken(n int) string {
	return randomToken(n)
}

func randomToken(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("session: crypto/rand failed: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
