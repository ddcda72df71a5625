// Package directory maps authenticated identities onto durable portal user
// records.
package directory

import "context"

// User is a portal user record. Email is not persisted; it is overlaid from
// the identity on every lookup.
type User struct {
	AccountID  string `json:"accountId"`
	GivenName  string `json:"givenName"`
	FamilyName string `json:"familyName"`
	TeamID     *int64 `json:"teamId"`
	Level      int    `json:"level"`
	Email      string `json:"email,omitempty"`
}

// Repository is the durable user store
type Repository interface {
	// GetUser returns nil, nil when no user has accountID
	GetUser(ctx context.Context, accountID string) (*User, error)
	// InsertUser creates the user. Inserting an existing account id is a no-op.
	InsertUser(ctx context.Context, user *User) error
}
