// Package credential persists the access/refresh token pair of the current
// portal session. Every component that needs the tokens receives a Store at
// construction; nothing reads ambient global state.
package credential

import (
	"context"
	"sync"
)

// Pair is the opaque access/refresh token pair issued at login.
type Pair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// IsZero reports whether no access token is held.
func (p Pair) IsZero() bool {
	return p.Access == ""
}

// Store defines get/set/clear over the persisted credential pair.
// Get returns a zero Pair and a nil error when nothing is stored.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context) (Pair, error)
	Set(ctx context.Context, pair Pair) error
	Clear(ctx context.Context) error
}

// MemoryStore keeps the pair in process memory. Used by tests and one-shot
// commands that must not leave tokens on disk.
type MemoryStore struct {
	mu   sync.RWMutex
	pair Pair
}

// NewMemoryStore creates an empty in-memory store, optionally seeded.
func NewMemoryStore(seed ...Pair) *MemoryStore {
	s := &MemoryStore{}
	if len(seed) > 0 {
		s.pair = seed[0]
	}
	return s
}

// Get returns the stored pair
func (s *MemoryStore) Get(_ context.Context) (Pair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair, nil
}

// Set replaces the stored pair
func (s *MemoryStore) Set(_ context.Context, pair Pair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = pair
	return nil
}

// Clear removes both tokens
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = Pair{}
	return nil
}

var _ Store = (*MemoryStore)(nil)
