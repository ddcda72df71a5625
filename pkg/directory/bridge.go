package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/platinummonkey/portalauth/pkg/observability"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// ErrUserMissing is returned when a freshly inserted user cannot be read back
var ErrUserMissing = errors.New("directory: user not found after insert")

// Bridge resolves authenticated identities to user records, creating the
// record on first login.
type Bridge struct {
	repo    Repository
	group   singleflight.Group
	logger  logrus.FieldLogger
	metrics *observability.Metrics
}

// NewBridge creates a bridge over repo
func NewBridge(repo Repository, logger logrus.FieldLogger, metrics *observability.Metrics) *Bridge {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Bridge{
		repo:    repo,
		logger:  logger.WithField("component", "directory"),
		metrics: metrics,
	}
}

// ResolveOrCreate returns the user for accountID, creating it with level 0
// and no team when absent. The returned user always carries email, which is
// never persisted. Concurrent calls for the same account share one lookup.
// The shared lookup is detached from the caller that started it, so one
// cancelled request does not fail the others; each caller still stops
// waiting when its own ctx is done.
func (b *Bridge) ResolveOrCreate(ctx context.Context, accountID, givenName, familyName, email string) (*User, error) {
	shared := context.WithoutCancel(ctx)
	ch := b.group.DoChan(accountID, func() (interface{}, error) {
		return b.resolve(shared, accountID, givenName, familyName)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Err != nil {
		return nil, res.Err
	}

	// copy so callers sharing a singleflight result can overlay their own email
	user := *res.Val.(*User)
	user.Email = email
	return &user, nil
}

func (b *Bridge) resolve(ctx context.Context, accountID, givenName, familyName string) (*User, error) {
	user, err := b.repo.GetUser(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", accountID, err)
	}
	if user != nil {
		return user, nil
	}

	if err := b.repo.InsertUser(ctx, &User{
		AccountID:  accountID,
		GivenName:  givenName,
		FamilyName: familyName,
		Level:      0,
	}); err != nil {
		return nil, fmt.Errorf("create %s: %w", accountID, err)
	}

	user, err = b.repo.GetUser(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("read back %s: %w", accountID, err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: %s", ErrUserMissing, accountID)
	}

	b.metrics.ObserveUserCreated()
	observability.FromContext(ctx, b.logger).WithField("new_account", accountID).Info("Created user record")
	return user, nil
}
