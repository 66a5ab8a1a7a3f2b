// Package fakekeyring provides an in-memory ports.SecretStore.
package fakekeyring

import (
	"sync"

	"github.com/acolita/appliance-shell/internal/ports"
)

// Store is a map-backed secret store.
type Store struct {
	mu      sync.Mutex
	secrets map[string]string
	err     error
}

// New returns an empty store.
func New() *Store {
	return &Store{secrets: make(map[string]string)}
}

// SetError makes every operation fail with err.
func (s *Store) SetError(err error) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	return s
}

func key(service, user string) string {
	return service + "\x00" + user
}

// Set stores secret.
func (s *Store) Set(service, user, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.secrets[key(service, user)] = secret
	return nil
}

// Get returns the stored secret or ports.ErrSecretNotFound.
func (s *Store) Get(service, user string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	v, ok := s.secrets[key(service, user)]
	if !ok {
		return "", ports.ErrSecretNotFound
	}
	return v, nil
}

// Delete removes an entry. Missing entries are not an error.
func (s *Store) Delete(service, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	delete(s.secrets, key(service, user))
	return nil
}

// Len returns the number of stored secrets.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.secrets)
}

var _ ports.SecretStore = (*Store)(nil)
