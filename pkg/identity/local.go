package identity

import (
	"context"

	"github.com/platinummonkey/portalauth/pkg/credentials"
	"github.com/platinummonkey/portalauth/pkg/observability"
	"github.com/platinummonkey/portalauth/pkg/password"
	"github.com/sirupsen/logrus"
)

// LocalResolver checks passwords against the credential store
type LocalResolver struct {
	store  *credentials.Store
	hasher password.Hasher
	logger logrus.FieldLogger
}

// NewLocalResolver creates a resolver over store
func NewLocalResolver(store *credentials.Store, hasher password.Hasher, logger logrus.FieldLogger) *LocalResolver {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &LocalResolver{store: store, hasher: hasher, logger: logger}
}

// Name returns "local"
func (l *LocalResolver) Name() string {
	return "local"
}

// Authenticate recomputes the salted hash and compares it in constant time
func (l *LocalResolver) Authenticate(ctx context.Context, username, pass string) (*Identity, error) {
	logger := observability.FromContext(ctx, l.logger).WithField("username", username)

	entry, ok := l.store.Lookup(username)
	if !ok {
		// burn the same work as a real check so unknown names are not faster
		l.hasher.Hash(pass, username)
		logger.Warn("Local login for unknown user")
		return nil, authError("unknown user", nil)
	}

	if !password.Equal(l.hasher.Hash(pass, entry.PassSalt), entry.PassHash) {
		logger.Warn("Local login with wrong password")
		return nil, authError("password mismatch", nil)
	}

	return &Identity{
		AccountID:  LocalPrefix + username,
		GivenName:  entry.GivenName,
		FamilyName: entry.FamilyName,
	}, nil
}
