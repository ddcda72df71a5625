package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by a Store when no session has the id
	ErrNotFound = errors.New("session: not found")
	// ErrCorrupt is returned when stored session data cannot be decoded
	ErrCorrupt = errors.New("session: corrupt data")
	// ErrInvalidCookie is returned when the cookie signature does not verify
	ErrInvalidCookie = errors.New("session: invalid cookie")
)

// Store persists session state by id
type Store interface {
	Get(ctx context.Context, id string) (*State, error)
	Save(ctx context.Context, id string, state *State, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}
