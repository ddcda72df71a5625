package identity

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/platinummonkey/portalauth/pkg/observability"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// DefaultGoogleIssuer is Google's OpenID Connect issuer
const DefaultGoogleIssuer = "https://accounts.google.com"

// GoogleConfig holds the decrypted client settings
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	IssuerURL    string
}

// GoogleResolver logs users in with Google's OpenID Connect flow
type GoogleResolver struct {
	oauth2Config *oauth2.Config
	verifier     *oidc.IDTokenVerifier
	logger       logrus.FieldLogger
}

type googleClaims struct {
	Subject    string `json:"sub"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Email      string `json:"email"`
}

// NewGoogleResolver discovers the issuer's endpoints and signing keys
func NewGoogleResolver(ctx context.Context, cfg GoogleConfig, logger logrus.FieldLogger) (*GoogleResolver, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("google: client id and secret are required")
	}
	issuer := cfg.IssuerURL
	if issuer == "" {
		issuer = DefaultGoogleIssuer
	}

	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("google: discover provider: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	return newGoogleResolver(cfg, provider.Endpoint(), verifier, logger), nil
}

func newGoogleResolver(cfg GoogleConfig, endpoint oauth2.Endpoint, verifier *oidc.IDTokenVerifier, logger logrus.FieldLogger) *GoogleResolver {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &GoogleResolver{
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		verifier: verifier,
		logger:   logger,
	}
}

// Name returns "google"
func (g *GoogleResolver) Name() string {
	return "google"
}

// LoginURL returns the consent page URL carrying state
func (g *GoogleResolver) LoginURL(state string) string {
	return g.oauth2Config.AuthCodeURL(state)
}

// Callback exchanges the code and verifies the returned ID token
func (g *GoogleResolver) Callback(ctx context.Context, r *http.Request) (*Identity, error) {
	logger := observability.FromContext(ctx, g.logger).WithField("provider", g.Name())

	code, err := callbackCode(r)
	if err != nil {
		logger.WithError(err).Warn("Google callback rejected")
		return nil, authError("callback", err)
	}

	token, err := g.oauth2Config.Exchange(ctx, code)
	if err != nil {
		logger.WithError(err).Warn("Google code exchange failed")
		return nil, authError("exchange", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		logger.Warn("Google token response without id_token")
		return nil, authError("missing id_token", nil)
	}

	idToken, err := g.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		logger.WithError(err).Warn("Google id_token verification failed")
		return nil, authError("verify id_token", err)
	}

	var claims googleClaims
	if err := idToken.Claims(&claims); err != nil {
		logger.WithError(err).Warn("Google id_token claims unreadable")
		return nil, authError("claims", err)
	}
	if claims.Subject == "" {
		claims.Subject = idToken.Subject
	}

	return &Identity{
		AccountID:  GooglePrefix + claims.Subject,
		GivenName:  claims.GivenName,
		FamilyName: claims.FamilyName,
		Email:      claims.Email,
	}, nil
}

// callbackCode extracts the authorization code, surfacing a provider side
// denial as an error.
func callbackCode(r *http.Request) (string, error) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		return "", fmt.Errorf("provider returned %q", e)
	}
	code := q.Get("code")
	if code == "" {
		return "", fmt.Errorf("missing authorization code")
	}
	return code, nil
}
