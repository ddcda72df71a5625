package session

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryStore keeps sessions in an expiring LRU. Sessions are lost on
// restart and are not shared between processes.
type MemoryStore struct {
	cache *expirable.LRU[string, State]
}

// NewMemoryStore holds at most size sessions, each for ttl after its last save
func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{cache: expirable.NewLRU[string, State](size, nil, ttl)}
}

// Get returns a copy of the stored state
func (m *MemoryStore) Get(_ context.Context, id string) (*State, error) {
	state, ok := m.cache.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	cp := state.clone()
	return &cp, nil
}

// Save stores a copy of state. The per-entry ttl is fixed by the LRU.
func (m *MemoryStore) Save(_ context.Context, id string, state *State, _ time.Duration) error {
	m.cache.Add(id, state.clone())
	return nil
}

// Delete removes the session; deleting an unknown id is not an error
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.cache.Remove(id)
	return nil
}

// Len returns the number of live sessions
func (m *MemoryStore) Len() int {
	return m.cache.Len()
}
