// Package memory provides a thread-safe in-memory implementation of
// tokenstore.Store. Suitable for testing and ephemeral sessions.
package memory

import (
	"sync"

	"github.com/jmcleod/storefront/tokenstore"
)

// Store is a thread-safe in-memory implementation of tokenstore.Store.
type Store struct {
	mu    sync.RWMutex
	token string
	set   bool
}

var _ tokenstore.Store = (*Store)(nil)

// NewStore creates a new empty in-memory Store.
func NewStore() *Store {
	return &Store{}
}

func (s *Store) Load() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.set {
		return "", tokenstore.ErrNotFound
	}
	return s.token, nil
}

func (s *Store) Save(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.set = true
	return nil
}

func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.set = false
	return nil
}
