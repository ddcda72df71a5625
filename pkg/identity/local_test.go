package identity

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/platinummonkey/portalauth/pkg/credentials"
	"github.com/platinummonkey/portalauth/pkg/password"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testParams = password.Params{Memory: 1024, Time: 1, Parallelism: 1, KeyLength: 32}

func newLocalResolver(t *testing.T) *LocalResolver {
	t.Helper()
	store, err := credentials.Load(filepath.Join(t.TempDir(), "users.json"), nil)
	require.NoError(t, err)

	hasher := password.NewArgon2Hasher(testParams)
	require.NoError(t, store.Add("bob1", credentials.Entry{
		GivenName:  "Bob",
		FamilyName: "Builder",
		PassSalt:   "c2FsdA==",
		PassHash:   hasher.Hash("Abcdefg1", "c2FsdA=="),
	}))
	return NewLocalResolver(store, hasher, nil)
}

func TestLocalResolver_Authenticate(t *testing.T) {
	resolver := newLocalResolver(t)
	assert.Equal(t, "local", resolver.Name())

	id, err := resolver.Authenticate(context.Background(), "bob1", "Abcdefg1")
	require.NoError(t, err)
	assert.Equal(t, &Identity{AccountID: "Local_bob1", GivenName: "Bob", FamilyName: "Builder"}, id)

	tests := []struct {
		name     string
		username string
		password string
	}{
		{"wrong password", "bob1", "Abcdefg2"},
		{"unknown user", "alice", "Abcdefg1"},
		{"username is case sensitive", "Bob1", "Abcdefg1"},
		{"empty password", "bob1", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := resolver.Authenticate(context.Background(), tt.username, tt.password)
			assert.Nil(t, id)
			assert.ErrorIs(t, err, ErrAuthenticationFailed)
		})
	}
}
