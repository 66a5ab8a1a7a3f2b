// Package realkeyring provides the OS keyring implementation of ports.SecretStore.
package realkeyring

import (
	"errors"

	"github.com/zalando/go-keyring"

	"github.com/acolita/appliance-shell/internal/ports"
)

// Store implements ports.SecretStore on top of zalando/go-keyring
// (macOS Keychain, Linux Secret Service, Windows Credential Manager).
type Store struct{}

// New returns a new keyring-backed store.
func New() *Store {
	return &Store{}
}

// Set stores secret under service/user.
func (s *Store) Set(service, user, secret string) error {
	return keyring.Set(service, user, secret)
}

// Get returns the secret for service/user, or ports.ErrSecretNotFound.
func (s *Store) Get(service, user string) (string, error) {
	secret, err := keyring.Get(service, user)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ports.ErrSecretNotFound
	}
	return secret, err
}

// Delete removes the entry for service/user. Missing entries are not an error.
func (s *Store) Delete(service, user string) error {
	err := keyring.Delete(service, user)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

var _ ports.SecretStore = (*Store)(nil)
