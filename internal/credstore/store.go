// Package credstore provides read access to the externally owned bearer
// credential used to authenticate the conversation channel. The session core
// only ever reads from a store; an empty token means "do not attempt to
// connect", not an error.
package credstore

import (
	"context"
	"sync"
)

// Store is a synchronous key-value read of the current access token.
type Store interface {
	// AccessToken returns the current bearer credential, or "" when none is
	// available. Lookup failures other than absence are returned as errors.
	AccessToken(ctx context.Context) (string, error)
}

// MemoryStore holds a token in memory. The zero value is usable and empty.
type MemoryStore struct {
	mu    sync.RWMutex
	token string
}

func NewMemoryStore(token string) *MemoryStore {
	return &MemoryStore{token: token}
}

func (ms *MemoryStore) AccessToken(ctx context.Context) (string, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.token, nil
}

// SetToken replaces the stored token. Used by owners of the store when a
// credential is refreshed; the session core never calls this.
func (ms *MemoryStore) SetToken(token string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.token = token
}

// Clear removes the stored token.
func (ms *MemoryStore) Clear() {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.token = ""
}
