// Package identity turns a login attempt into a verified identity tuple.
//
// Three resolvers exist: local (username and password checked against the
// credential store), Google (OpenID Connect) and Slack (OAuth2 plus the
// users.identity call). Which ones are active is decided at startup from
// configuration; see NewRegistry.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Account id prefixes, one per provider
const (
	LocalPrefix  = "Local_"
	GooglePrefix = "Google_"
	SlackPrefix  = "Slack_"
)

// ErrAuthenticationFailed is the only error callers see from a resolver.
// The underlying cause is wrapped for logging.
var ErrAuthenticationFailed = errors.New("authentication failed")

// Identity is the normalized result of a successful login
type Identity struct {
	AccountID  string
	GivenName  string
	FamilyName string
	Email      string
}

// Resolver is implemented by every login strategy
type Resolver interface {
	Name() string
}

// PasswordResolver verifies a username and password
type PasswordResolver interface {
	Resolver
	Authenticate(ctx context.Context, username, password string) (*Identity, error)
}

// OAuthResolver drives a redirect based login
type OAuthResolver interface {
	Resolver
	// LoginURL is where the browser is sent to start the handshake
	LoginURL(state string) string
	// Callback completes the handshake from the provider's redirect
	Callback(ctx context.Context, r *http.Request) (*Identity, error)
}

func authError(detail string, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrAuthenticationFailed, detail, err)
	}
	return fmt.Errorf("%w: %s", ErrAuthenticationFailed, detail)
}
