package identity

import (
	"context"
	"fmt"
	"sort"

	"github.com/platinummonkey/portalauth/pkg/config"
	"github.com/platinummonkey/portalauth/pkg/credentials"
	"github.com/platinummonkey/portalauth/pkg/password"
	"github.com/platinummonkey/portalauth/pkg/secrets"
	"github.com/sirupsen/logrus"
)

// Registry holds the resolvers enabled for this deployment
type Registry struct {
	local PasswordResolver
	oauth map[string]OAuthResolver
}

// NewRegistry collects resolvers. Nil entries are skipped.
func NewRegistry(resolvers ...Resolver) *Registry {
	reg := &Registry{oauth: make(map[string]OAuthResolver)}
	for _, r := range resolvers {
		switch v := r.(type) {
		case nil:
		case PasswordResolver:
			reg.local = v
		case OAuthResolver:
			reg.oauth[v.Name()] = v
		}
	}
	return reg
}

// Local returns the password resolver, if local auth is enabled
func (r *Registry) Local() (PasswordResolver, bool) {
	return r.local, r.local != nil
}

// OAuth returns the redirect resolver registered under name
func (r *Registry) OAuth(name string) (OAuthResolver, bool) {
	res, ok := r.oauth[name]
	return res, ok
}

// Names lists the enabled resolvers in a stable order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.oauth)+1)
	if r.local != nil {
		names = append(names, r.local.Name())
	}
	for name := range r.oauth {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Factory builds resolvers from configuration
type Factory struct {
	Decrypter secrets.Decrypter
	Store     *credentials.Store
	Hasher    password.Hasher
	Logger    logrus.FieldLogger
}

// Build creates one resolver per configured provider. A missing section
// leaves that provider out; a secret that fails to decrypt is an error.
func (f *Factory) Build(ctx context.Context, cfg config.AuthConfig) (*Registry, error) {
	var resolvers []Resolver

	if f.Store != nil {
		resolvers = append(resolvers, NewLocalResolver(f.Store, f.Hasher, f.Logger))
	}

	if g := cfg.Google; g != nil {
		secret, err := f.Decrypter.Decrypt(g.EncClientSecret)
		if err != nil {
			return nil, fmt.Errorf("decrypt google client secret: %w", err)
		}
		res, err := NewGoogleResolver(ctx, GoogleConfig{
			ClientID:     g.ClientID,
			ClientSecret: secret,
			RedirectURL:  g.CallbackURL,
			IssuerURL:    g.IssuerURL,
		}, f.Logger)
		if err != nil {
			return nil, err
		}
		resolvers = append(resolvers, res)
	}

	if s := cfg.Slack; s != nil {
		secret, err := f.Decrypter.Decrypt(s.EncClientSecret)
		if err != nil {
			return nil, fmt.Errorf("decrypt slack client secret: %w", err)
		}
		res, err := NewSlackResolver(SlackConfig{
			ClientID:     s.ClientID,
			ClientSecret: secret,
			RedirectURL:  s.CallbackURL,
			TeamID:       s.TeamID,
		}, f.Logger)
		if err != nil {
			return nil, err
		}
		resolvers = append(resolvers, res)
	}

	return NewRegistry(resolvers...), nil
}
